package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint is one operation of the Folio API surface. Every operation is
// exposed twice, as an HTTP route on the server and as a CLI command that
// calls that route, so the interface carries both.
type Endpoint interface {
	// Route returns the HTTP method, path pattern, and handler.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the route needs the store online and
	// the service graph built. Health and docs endpoints answer before
	// that point; everything else waits behind the init middleware.
	RequiresInit() bool

	// Command returns the cobra command that drives this endpoint over
	// HTTP. getServerURL is evaluated at run time, after flags resolve.
	Command(getServerURL func() string) *cobra.Command
}
