package deviceauth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Accepted ISO-8601 layouts: date and time separated by T or a space,
// seconds optional, and an extended (+02:00), basic (+0200) or missing
// offset. Layouts without an offset are read as UTC.
var timestampLayouts = func() []string {
	var layouts []string
	for _, sep := range []string{"T", " "} {
		for _, clock := range []string{"15:04:05.999999999", "15:04"} {
			for _, zone := range []string{"Z07:00", "Z0700", ""} {
				layouts = append(layouts, "2006-01-02"+sep+clock+zone)
			}
		}
	}
	return append(layouts, "2006-01-02")
}()

// Wire shapes. Pointers distinguish absent or null fields from empty ones.
type (
	payload struct {
		Request   *wireRequest
		Token     *wireToken
		Error     *wireError
		RequestID *string
	}

	// wirePayload keeps each branch raw until it is known to be non-empty
	wirePayload struct {
		Request   json.RawMessage `json:"request"`
		Token     json.RawMessage `json:"token"`
		Error     json.RawMessage `json:"error"`
		RequestID *string         `json:"requestId"`
	}

	wireRequest struct {
		ID              *string `json:"id"`
		UserCode        *string `json:"userCode"`
		VerificationURL *string `json:"verificationUrl"`
		ExpiresAt       *string `json:"expiresAt"`
	}

	wireToken struct {
		AccessToken  *string   `json:"accessToken"`
		ExpiresAt    *string   `json:"expiresAt"`
		RefreshToken *string   `json:"refreshToken"`
		Scopes       *[]string `json:"scopes"`
	}

	wireError struct {
		Code    *string `json:"code"`
		Reason  *string `json:"reason"`
		Message *string `json:"message"`
	}
)

// result is the outcome of one operation. At most one of value and err is
// set; neither means the server sent an empty payload.
type result[T any] struct {
	value *T
	err   *OperationError

	// requestID is the correlation id echoed by a notification, if any
	requestID string
}

func (r result[T]) empty() bool {
	return r.value == nil && r.err == nil
}

// decodePayload extracts the root field of op from GraphQL response data
func decodePayload(op Operation, data json.RawMessage) (*payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	raw, ok := fields[op.Field]
	if !ok || isNull(raw) {
		return nil, &DecodeError{Field: op.Field, Err: ErrMalformedResponse}
	}

	var w wirePayload
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &DecodeError{Field: op.Field, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	p := &payload{RequestID: w.RequestID}
	if err := decodeBranch(op.Field+".request", w.Request, &p.Request); err != nil {
		return nil, err
	}
	if err := decodeBranch(op.Field+".token", w.Token, &p.Token); err != nil {
		return nil, err
	}
	if err := decodeBranch(op.Field+".error", w.Error, &p.Error); err != nil {
		return nil, err
	}
	return p, nil
}

// decodeBranch sets *dst unless raw is absent, null or an empty object. An
// empty object is what the server sends for a union member the document
// does not select.
func decodeBranch[T any](field string, raw json.RawMessage, dst **T) error {
	if isNull(raw) {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return &DecodeError{Field: field, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if len(fields) == 0 {
		return nil
	}

	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{Field: field, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	*dst = v
	return nil
}

// decodeRequestResult decodes a start-flow response
func decodeRequestResult(data json.RawMessage) (result[AuthenticationRequest], error) {
	var r result[AuthenticationRequest]

	p, err := decodePayload(StartAuthenticationFlow, data)
	if err != nil {
		return r, err
	}

	switch {
	case p.Error != nil:
		r.err = decodeError(KindFlow, p.Error)
	case p.Request != nil:
		r.value, err = decodeRequest(p.Request)
	}
	return r, err
}

// decodeTokenResult decodes a refresh or notification response for op
func decodeTokenResult(op Operation, kind Kind, data json.RawMessage) (result[AuthenticationToken], error) {
	var r result[AuthenticationToken]

	p, err := decodePayload(op, data)
	if err != nil {
		return r, err
	}
	if p.RequestID != nil {
		r.requestID = *p.RequestID
	}

	switch {
	case p.Error != nil:
		r.err = decodeError(kind, p.Error)
	case p.Token != nil:
		r.value, err = decodeToken(p.Token)
	}
	return r, err
}

func decodeRequest(w *wireRequest) (*AuthenticationRequest, error) {
	id, err := required("request.id", w.ID)
	if err != nil {
		return nil, err
	}
	userCode, err := required("request.userCode", w.UserCode)
	if err != nil {
		return nil, err
	}
	verificationURL, err := required("request.verificationUrl", w.VerificationURL)
	if err != nil {
		return nil, err
	}
	expiresAt, err := requiredTime("request.expiresAt", w.ExpiresAt)
	if err != nil {
		return nil, err
	}

	return &AuthenticationRequest{
		ID:              id,
		UserCode:        userCode,
		VerificationURL: verificationURL,
		ExpiresAt:       expiresAt,
	}, nil
}

func decodeToken(w *wireToken) (*AuthenticationToken, error) {
	accessToken, err := required("token.accessToken", w.AccessToken)
	if err != nil {
		return nil, err
	}
	expiresAt, err := requiredTime("token.expiresAt", w.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if w.Scopes == nil {
		return nil, &DecodeError{Field: "token.scopes", Err: errors.New("missing required field")}
	}

	scopes := make([]Scope, 0, len(*w.Scopes))
	for _, s := range *w.Scopes {
		scope, err := ParseScope(s)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}

	tok := &AuthenticationToken{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		Scopes:      scopes,
	}
	if w.RefreshToken != nil {
		tok.RefreshToken = *w.RefreshToken
	}
	return tok, nil
}

// decodeError applies the reason/code and message fallbacks for kind
func decodeError(kind Kind, w *wireError) *OperationError {
	e := &OperationError{
		Kind:    kind,
		Reason:  ReasonUnknown,
		Message: kind.defaultMessage(),
	}

	switch {
	case w.Reason != nil:
		e.Reason = *w.Reason
	case w.Code != nil:
		e.Reason = *w.Code
	}
	if w.Message != nil {
		e.Message = *w.Message
	}
	return e
}

func required(field string, v *string) (string, error) {
	if v == nil {
		return "", &DecodeError{Field: field, Err: errors.New("missing required field")}
	}
	return *v, nil
}

func requiredTime(field string, v *string) (time.Time, error) {
	s, err := required(field, v)
	if err != nil {
		return time.Time{}, err
	}
	t, err := parseTimestamp(s)
	if err != nil {
		return time.Time{}, &DecodeError{Field: field, Err: err}
	}
	return t, nil
}

// parseTimestamp parses an ISO-8601 timestamp and normalizes it to UTC
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
