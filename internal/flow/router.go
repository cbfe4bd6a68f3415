package flow

import (
	"log"
	"strconv"
	"strings"
)

// LoanQuoteFunc computes the loan-result screen data from the calculator
// fields. It returns display-ready values; a validation failure is
// recovered by the router, never surfaced to HTTP.
type LoanQuoteFunc func(principal float64, months int, monthlyRatePct float64) (map[string]any, error)

// Router decides the next screen for a decrypted Flow request. It is
// stateless and idempotent: identical input yields identical output.
type Router struct {
	Registry  *Registry
	LoanQuote LoanQuoteFunc
}

// NewRouter creates a router over the given registry.
func NewRouter(reg *Registry, quote LoanQuoteFunc) *Router {
	return &Router{Registry: reg, LoanQuote: quote}
}

// Route maps a decrypted request to exactly one screen response. Every
// domain-level failure resolves to a valid screen so the client-side form
// keeps functioning; Route never returns an error.
func (rt *Router) Route(req Request) Response {
	// Health check is flow-independent and checked first.
	if req.Action == ActionPing {
		return rt.Registry.PingResponse()
	}

	def, ok := rt.Registry.Flow(req.FlowID)
	if !ok {
		log.Printf("flow: unregistered flow_id %q (action=%s)", req.FlowID, req.Action)
		return rt.Registry.ErrorResponse()
	}

	switch req.Action {
	case def.SuccessAction:
		return successResponse(def, req)
	case ActionInit:
		return Response{Screen: def.FirstScreen, Data: echoData(req.Data)}
	case ActionDataExchange:
		return rt.dataExchange(def, req)
	default:
		// Unknown actions are a normal condition: the platform ships new
		// actions before handlers learn them. Echo the current screen.
		log.Printf("flow: unhandled action %q on screen %q", req.Action, req.Screen)
		return Response{
			Screen: currentScreen(def, req),
			Data:   map[string]any{"error_message": def.Messages.UnhandledAction},
		}
	}
}

func (rt *Router) dataExchange(def *Definition, req Request) Response {
	if hasErrorMarker(req.Data) {
		log.Printf("flow %s: client reported error on screen %q, resetting", def.ID, req.Screen)
		return Response{
			Screen: def.FirstScreen,
			Data:   map[string]any{"error_message": def.Messages.GenericError},
		}
	}

	if next, ok := req.Data["next_screen"].(string); ok && next != "" {
		if !def.HasScreen(next) {
			return Response{
				Screen: def.FirstScreen,
				Data:   map[string]any{"error_message": def.Messages.RoutingError},
			}
		}

		target := def.Screens[next]
		if target.Compute == ComputeLoan && req.Screen == target.From {
			return rt.loanResult(def, req, next)
		}

		// Plain transition: carry the submitted data through verbatim.
		return Response{Screen: next, Data: echoData(req.Data)}
	}

	if req.Screen == def.FirstScreen {
		service, _ := req.Data["selected_service"].(string)
		if def.ServiceAllowed(service) {
			return Response{Screen: service, Data: echoData(req.Data)}
		}
		return Response{
			Screen: def.FirstScreen,
			Data:   map[string]any{"error_message": def.Messages.InvalidService},
		}
	}

	log.Printf("flow %s: no transition rule for screen %q", def.ID, req.Screen)
	return Response{
		Screen: def.FirstScreen,
		Data:   map[string]any{"error_message": def.Messages.RoutingError},
	}
}

func (rt *Router) loanResult(def *Definition, req Request, next string) Response {
	invalid := Response{
		Screen: currentScreen(def, req),
		Data:   map[string]any{"error_message": def.Messages.ValidationError},
	}

	principal, okP := numberField(req.Data, "principal")
	duration, okD := numberField(req.Data, "duration")
	rate, okR := numberField(req.Data, "rate")
	if !okP || !okD || !okR {
		return invalid
	}

	data, err := rt.LoanQuote(principal, int(duration), rate)
	if err != nil {
		log.Printf("flow %s: loan quote rejected: %v", def.ID, err)
		return invalid
	}
	return Response{Screen: next, Data: data}
}

// successResponse clones the terminal template and threads the client's
// flow_token into the nested parameter slot. The template itself is shared
// across requests and must never be written to.
func successResponse(def *Definition, req Request) Response {
	resp := Response{
		Screen: def.SuccessResponse.Screen,
		Data:   deepCopyMap(def.SuccessResponse.Data),
	}
	if resp.Data == nil {
		resp.Data = map[string]any{}
	}
	if ext, ok := resp.Data["extension_message_response"].(map[string]any); ok {
		if params, ok := ext["params"].(map[string]any); ok {
			params["flow_token"] = req.FlowToken
		}
	}
	return resp
}

// currentScreen resolves the screen to re-render for defensive branches.
// Unknown or unreported screens fall back to the flow's first screen.
func currentScreen(def *Definition, req Request) string {
	if req.Screen == "" || req.Screen == ScreenUnknown || !def.HasScreen(req.Screen) {
		return def.FirstScreen
	}
	return req.Screen
}

// echoData returns a private copy of client data, never nil: the platform
// requires a data object on every screen response.
func echoData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return deepCopyMap(data)
}

// hasErrorMarker reports whether the client flagged the submission as
// failed (boolean error flag or non-empty error/error_message string).
func hasErrorMarker(data map[string]any) bool {
	switch v := data["error"].(type) {
	case bool:
		if v {
			return true
		}
	case string:
		if v != "" {
			return true
		}
	}
	if v, ok := data["error_message"].(string); ok && v != "" {
		return true
	}
	return false
}

// numberField coerces a free-form data value to float64. Decoded JSON
// only yields float64 or string here; clients submit numbers both ways.
func numberField(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
