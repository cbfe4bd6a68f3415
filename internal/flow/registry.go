package flow

// Screen identifiers of the loan flow.
const (
	ScreenMainMenu       = "MAIN_MENU"
	ScreenLoanCalculator = "LOAN_CALCULATOR"
	ScreenLoanResult     = "LOAN_RESULT"
	ScreenCreditScore    = "CREDIT_SCORE"
	ScreenAccountInfo    = "ACCOUNT_INFO"
	ScreenHealthCheck    = "HEALTH_CHECK"
	ScreenError          = "ERROR"
)

// Reserved registry entries. These are not client flows: PingEntry backs
// the health-check action and ErrorEntry backs every unknown-flow
// response, so even the fallback screens come from the registry instead of
// literals scattered through the router.
const (
	PingEntry  = "HEALTH_CHECK_PING"
	ErrorEntry = "ERROR"
)

// LoanFlowID is the flow identifier the loan form submits under.
const LoanFlowID = "LOAN_FLOW_ID_1"

// ComputeLoan marks a screen whose data is produced by the loan
// calculator rather than passed through from the client.
const ComputeLoan = "loan"

// ScreenDef describes one registered screen of a flow. Compute, when set,
// names a server-side computation that runs when the client requests this
// screen as next_screen from the From screen.
type ScreenDef struct {
	Compute string
	From    string
}

// Messages holds the client-facing strings a flow renders on its error
// paths. They live on the definition so alternate registries can swap
// languages.
type Messages struct {
	InvalidService  string
	RoutingError    string
	UnhandledAction string
	ValidationError string
	GenericError    string
}

// Definition is the static per-flow configuration. Immutable after
// construction; shared by all requests without locking.
type Definition struct {
	ID            string
	FirstScreen   string
	Screens       map[string]ScreenDef
	Services      []string // selected_service allow-list on the main menu
	SuccessAction string
	// SuccessResponse is the terminal response template. It is deep-copied
	// before flow_token injection; the registry copy is never mutated.
	SuccessResponse Response
	Messages        Messages
}

// HasScreen reports whether name is a registered screen of the flow.
func (d *Definition) HasScreen(name string) bool {
	_, ok := d.Screens[name]
	return ok
}

// ServiceAllowed reports whether the main-menu service id is recognized.
func (d *Definition) ServiceAllowed(service string) bool {
	for _, s := range d.Services {
		if s == service {
			return true
		}
	}
	return false
}

// Registry is the static flow lookup table, built once at startup.
type Registry struct {
	flows map[string]*Definition
}

// NewRegistry builds a registry from definitions. The PingEntry and
// ErrorEntry definitions are required; NewRegistry adds defaults when the
// caller omits them.
func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{flows: make(map[string]*Definition, len(defs)+2)}
	for _, d := range defs {
		r.flows[d.ID] = d
	}
	if _, ok := r.flows[PingEntry]; !ok {
		r.flows[PingEntry] = pingDefinition()
	}
	if _, ok := r.flows[ErrorEntry]; !ok {
		r.flows[ErrorEntry] = errorDefinition()
	}
	return r
}

// Flow returns the definition for flowID. An unknown id is an expected
// condition, not an error: callers fall back to the ErrorEntry response.
func (r *Registry) Flow(flowID string) (*Definition, bool) {
	d, ok := r.flows[flowID]
	return d, ok
}

// PingResponse is the fixed health-check response, independent of flow.
func (r *Registry) PingResponse() Response {
	d := r.flows[PingEntry]
	return Response{
		Screen: d.FirstScreen,
		Data:   deepCopyMap(d.SuccessResponse.Data),
	}
}

// ErrorResponse is the generic error screen returned for unregistered
// flows. The platform expects a screen, not an HTTP error, for logical
// flow failures.
func (r *Registry) ErrorResponse() Response {
	d := r.flows[ErrorEntry]
	return Response{
		Screen: d.FirstScreen,
		Data:   deepCopyMap(d.SuccessResponse.Data),
	}
}

func pingDefinition() *Definition {
	return &Definition{
		ID:          PingEntry,
		FirstScreen: ScreenHealthCheck,
		SuccessResponse: Response{
			Screen: ScreenHealthCheck,
			Data:   map[string]any{"status": "active"},
		},
	}
}

func errorDefinition() *Definition {
	return &Definition{
		ID:          ErrorEntry,
		FirstScreen: ScreenError,
		SuccessResponse: Response{
			Screen: ScreenError,
			Data:   map[string]any{"error_message": "Formulir tidak dikenali. Silakan coba lagi."},
		},
	}
}

// DefaultRegistry returns the production registry: the loan flow plus the
// required ping and error entries.
func DefaultRegistry() *Registry {
	return NewRegistry(LoanFlow())
}

// LoanFlow is the static definition of the lending flow.
func LoanFlow() *Definition {
	return &Definition{
		ID:          LoanFlowID,
		FirstScreen: ScreenMainMenu,
		Screens: map[string]ScreenDef{
			ScreenMainMenu:       {},
			ScreenLoanCalculator: {},
			ScreenLoanResult:     {Compute: ComputeLoan, From: ScreenLoanCalculator},
			ScreenCreditScore:    {},
			ScreenAccountInfo:    {},
		},
		Services:      []string{ScreenLoanCalculator, ScreenCreditScore, ScreenAccountInfo},
		SuccessAction: "complete_loan_request",
		SuccessResponse: Response{
			Screen: "SUCCESS",
			Data: map[string]any{
				"extension_message_response": map[string]any{
					"params": map[string]any{
						"flow_token": "",
						"status":     "submitted",
					},
				},
			},
		},
		Messages: Messages{
			InvalidService:  "Layanan tidak tersedia. Silakan pilih dari menu.",
			RoutingError:    "Terjadi kesalahan. Silakan ulangi dari menu utama.",
			UnhandledAction: "Permintaan tidak dapat diproses saat ini.",
			ValidationError: "Data pinjaman tidak valid. Periksa jumlah dan jangka waktu.",
			GenericError:    "Terjadi kesalahan. Silakan coba lagi.",
		},
	}
}
