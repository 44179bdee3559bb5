package classifier

import "context"

// Verdict labels, matching what the web UI has always displayed.
const (
	LabelHotdog    = "Hotdog! 🌭"
	LabelNotHotdog = "Not Hotdog! ❌"
)

// Verdict is the classification outcome. JSON tags match the /classify wire
// contract.
type Verdict struct {
	Label       string `json:"result"`
	IsHotdog    bool   `json:"isRealHotdog"`
	Description string `json:"description,omitempty"`
}

// Client exposes the subset of model functionality used by the classify flow.
type Client interface {
	Classify(ctx context.Context, image []byte) (*Verdict, error)
	Ping(ctx context.Context) error
}
