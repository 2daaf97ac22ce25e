package deviceauth

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// TokenSource returns an oauth2.TokenSource that serves tok until it
// expires and then renews it with RefreshToken. When the instance returns
// a new refresh token it replaces the previous one; otherwise the previous
// one is kept. ctx bounds every refresh.
func (f *Flow) TokenSource(ctx context.Context, tok *AuthenticationToken) oauth2.TokenSource {
	src := &refreshingSource{
		ctx:     ctx,
		flow:    f,
		current: tok,
	}
	return oauth2.ReuseTokenSource(f.oauth2Token(tok), src)
}

// refreshingSource is only called by oauth2.ReuseTokenSource, which
// serializes calls to Token.
type refreshingSource struct {
	ctx     context.Context
	flow    *Flow
	current *AuthenticationToken
}

func (s *refreshingSource) Token() (*oauth2.Token, error) {
	if s.current == nil || !s.current.CanRefresh() {
		return nil, ErrNoRefreshToken
	}

	next, err := s.flow.RefreshToken(s.ctx, s.current.RefreshToken)
	if err != nil {
		return nil, err
	}
	if !next.CanRefresh() {
		next.RefreshToken = s.current.RefreshToken
	}
	s.current = next

	return s.flow.oauth2Token(next), nil
}

// oauth2Token converts tok, judging expiry against the flow's clock rather
// than the oauth2 package's.
func (f *Flow) oauth2Token(tok *AuthenticationToken) *oauth2.Token {
	if tok == nil {
		return nil
	}
	t := tok.OAuth2()
	if tok.ExpiredAt(f.now()) {
		// Force ReuseTokenSource to refresh on first use
		t.Expiry = time.Unix(1, 0)
	}
	return t
}
