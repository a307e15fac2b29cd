package restapi

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/andi-rb/osmmatch/internal/matcherr"
)

// ErrResponse model info
//
//	@Description	error response envelope
type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText    string   `json:"status"`
	ErrorText     string   `json:"error,omitempty"`
	ErrValidation []string `json:"validation,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
	}
}

func ErrValidation(err error, errV []error) render.Renderer {
	vv := make([]string, 0, len(errV))
	for _, v := range errV {
		vv = append(vv, v.Error())
	}
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
		ErrValidation:  vv,
	}
}

// translateMatchError maps a matcherr.Kind to the HTTP status spec.md
// §7's outcomes correspond to: bad/insufficient input is a client
// error, a gateway failure is a transient server error, anything
// unclassified is an opaque internal error.
func translateMatchError(err error) render.Renderer {
	switch matcherr.KindOf(err) {
	case matcherr.NotEnoughPoints:
		return &ErrResponse{
			Err:            err,
			HTTPStatusCode: http.StatusUnprocessableEntity,
			StatusText:     "Not enough points to match.",
			ErrorText:      err.Error(),
		}
	case matcherr.DBError:
		return &ErrResponse{
			Err:            err,
			HTTPStatusCode: http.StatusServiceUnavailable,
			StatusText:     "Road network lookup failed.",
			ErrorText:      err.Error(),
		}
	default:
		return &ErrResponse{
			Err:            err,
			HTTPStatusCode: http.StatusInternalServerError,
			StatusText:     "Internal server error.",
			ErrorText:      err.Error(),
		}
	}
}
