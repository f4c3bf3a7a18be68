package http

import (
	"github.com/pinion-app/api/internal/application/auth"
	"github.com/pinion-app/api/internal/application/session"
	"github.com/pinion-app/api/internal/infrastructure/dynamo"
	"github.com/pinion-app/api/internal/infrastructure/sns"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         *dynamo.UserRepo
	TokenRepo        *dynamo.TokenRepo
	VerificationRepo *dynamo.VerificationRepo
	SMSSender        sns.Sender
}

// Compile-time checks that the concrete repos satisfy the store
// interfaces the services consume.
var (
	_ session.UserStore      = (*dynamo.UserRepo)(nil)
	_ session.TokenStore     = (*dynamo.TokenRepo)(nil)
	_ auth.UserStore         = (*dynamo.UserRepo)(nil)
	_ auth.VerificationStore = (*dynamo.VerificationRepo)(nil)
)
