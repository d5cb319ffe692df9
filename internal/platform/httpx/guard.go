package httpx

import "net/http"

// Guard gates routes on the bearer principal. Handlers receive it so route
// permissions stay declared next to the routes they protect.
type Guard interface {
	// Authenticate requires a valid principal but no specific permission.
	Authenticate(next http.Handler) http.Handler
	// Require requires a principal holding permission.
	Require(permission string) func(http.Handler) http.Handler
}
