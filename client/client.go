// Package client provides typed adapters for driving the auction
// applications on a host ledger: ManagerClient for the registrar,
// AuctionClient for sellers, and AuctionBidder for bidders. The adapters
// compose the transaction groups each operation requires (reserve prefunding
// payments, deposit transfers, application calls) and tag every transaction
// with a standardized note.
package client

import (
	"fmt"
	"strings"

	"github.com/oysterpack/oysterpack-smart/ledger"
)

// AppTxnNote is the standardized transaction note, encoded as "app/method".
// Notes let indexers attribute raw transactions to application operations.
type AppTxnNote struct {
	App    string
	Method string
}

func (n AppTxnNote) String() string {
	return n.App + "/" + n.Method
}

// ParseAppTxnNote decodes a transaction note in "app/method" form.
func ParseAppTxnNote(note string) (AppTxnNote, error) {
	app, method, ok := strings.Cut(note, "/")
	if !ok || app == "" || method == "" {
		return AppTxnNote{}, fmt.Errorf("note %q is not in app/method form: %w", note, ledger.ErrInvalidArgument)
	}
	return AppTxnNote{App: app, Method: method}, nil
}
