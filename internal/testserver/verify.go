package testserver

import (
	"errors"
	"html/template"
	"net/http"
)

var pages = template.Must(template.New("pages").Parse(`{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{template "title" .}}</title></head>
<body>{{template "body" .}}</body>
</html>{{end}}`))

var (
	verifyPage = template.Must(template.Must(pages.Clone()).Parse(`
{{define "title"}}Authorize device{{end}}
{{define "body"}}<h1>Authorize device</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/device">
  <label for="user_code">Code</label>
  <input id="user_code" name="user_code" value="{{.PrefilledCode}}" autocomplete="off" required>
  <button type="submit">Continue</button>
</form>{{end}}`))

	completePage = template.Must(template.Must(pages.Clone()).Parse(`
{{define "title"}}Device authorized{{end}}
{{define "body"}}<h1>Device authorized</h1><p>{{.Message}}</p>{{end}}`))

	errorPage = template.Must(template.Must(pages.Clone()).Parse(`
{{define "title"}}{{.Title}}{{end}}
{{define "body"}}<h1>{{.Title}}</h1><p>{{.Message}}</p>{{end}}`))
)

type verifyData struct {
	PrefilledCode string
	Error         string
}

type completeData struct {
	Message string
}

type errorData struct {
	Title   string
	Message string
}

// ServeVerificationPage enables the browser side of the flow: submitting a
// user code on the verification page approves its request with token.
// ServeDeviceFlow must be called first.
func (s *Server) ServeVerificationPage(token map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flows != nil {
		s.flows.pageToken = token
	}
}

func (s *Server) pageToken() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flows == nil {
		return nil
	}
	return s.flows.pageToken
}

func (s *Server) handleVerifyForm(w http.ResponseWriter, r *http.Request) {
	if s.pageToken() == nil {
		render(w, http.StatusNotFound, errorPage, errorData{
			Title:   "Not Available",
			Message: "Device verification is not enabled.",
		})
		return
	}
	render(w, http.StatusOK, verifyPage, verifyData{PrefilledCode: r.URL.Query().Get("code")})
}

func (s *Server) handleVerifySubmit(w http.ResponseWriter, r *http.Request) {
	token := s.pageToken()
	if token == nil {
		render(w, http.StatusNotFound, errorPage, errorData{
			Title:   "Not Available",
			Message: "Device verification is not enabled.",
		})
		return
	}

	if err := r.ParseForm(); err != nil {
		render(w, http.StatusBadRequest, errorPage, errorData{
			Title:   "Invalid Request",
			Message: "The form could not be read.",
		})
		return
	}

	code := r.PostForm.Get("user_code")
	if code == "" {
		render(w, http.StatusBadRequest, verifyPage, verifyData{Error: "Please enter the code shown on your device."})
		return
	}

	_, err := s.Approve(code, token)
	switch {
	case errors.Is(err, ErrCodeExpired):
		render(w, http.StatusBadRequest, verifyPage, verifyData{
			PrefilledCode: code,
			Error:         "This code has expired. Please request a new code on your device.",
		})
	case err != nil:
		render(w, http.StatusBadRequest, verifyPage, verifyData{
			PrefilledCode: code,
			Error:         "Invalid code. Please check the code and try again.",
		})
	default:
		render(w, http.StatusOK, completePage, completeData{
			Message: "You have successfully authorized the device. You may now close this window.",
		})
	}
}

func render(w http.ResponseWriter, status int, page *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	page.ExecuteTemplate(w, "layout", data)
}
