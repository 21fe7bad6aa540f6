package auth

import "context"

type subjectKey struct{}

// WithSubject stores the token subject: a users.id, or the configured admin's username.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey{}, sub)
}

// SubjectFromContext returns "" outside an authenticated request.
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
