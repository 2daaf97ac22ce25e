package deviceauth

// Operation is a fixed GraphQL document sent to the instance
type Operation struct {
	// Name is the GraphQL operation name
	Name string
	// Field is the root field carrying the payload in the response data
	Field string
	// Document is the GraphQL source text
	Document string
}

// Variable names used by the operations
const (
	varRefreshToken = "refreshToken"
	varRequestID    = "requestId"
)

// StartAuthenticationFlow starts a device flow. It takes no variables.
var StartAuthenticationFlow = Operation{
	Name:  "StartAuthenticationFlow",
	Field: "startAuthenticationFlow",
	Document: `mutation StartAuthenticationFlow {
  startAuthenticationFlow {
    request {
      id
      userCode
      verificationUrl
      expiresAt
    }
    error {
      ... on AuthenticationUserError {
        code
        reason
      }
      ... on CloudUserError {
        code
        reason
      }
      ... on InternalUserError {
        code
        message
      }
      ... on OtherUserError {
        code
      }
    }
  }
}`,
}

// RefreshAuthenticationToken exchanges a refresh token for a new token
var RefreshAuthenticationToken = Operation{
	Name:  "RefreshAuthenticationToken",
	Field: "refreshAuthenticationToken",
	Document: `mutation RefreshAuthenticationToken($refreshToken: Token!) {
  refreshAuthenticationToken(refreshToken: $refreshToken) {
    token {
      accessToken
      expiresAt
      refreshToken
      scopes
    }
    error {
      ... on AuthenticationUserError {
        code
        reason
      }
      ... on CloudUserError {
        code
        reason
      }
      ... on InternalUserError {
        code
        message
      }
      ... on OtherUserError {
        code
      }
    }
  }
}`,
}

// CreatedAuthenticationToken notifies when the request identified by
// requestId is approved or rejected.
var CreatedAuthenticationToken = Operation{
	Name:  "CreatedAuthenticationToken",
	Field: "createdAuthenticationToken",
	Document: `subscription CreatedAuthenticationToken($requestId: ID!) {
  createdAuthenticationToken(requestId: $requestId) {
    token {
      accessToken
      expiresAt
      refreshToken
      scopes
    }
    error {
      ... on AuthenticationUserError {
        code
        reason
      }
      ... on InternalUserError {
        code
        message
      }
      ... on OtherUserError {
        code
      }
    }
  }
}`,
}
