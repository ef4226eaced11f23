package auction

import (
	"fmt"

	"github.com/oysterpack/oysterpack-smart/ledger"
)

// Manager method names.
const (
	MethodCreateAuction          = "create_auction"
	MethodDeleteFinalizedAuction = "delete_finalized_auction"
	MethodWithdrawAlgo           = "withdraw_algo"
	MethodGetAuctionCreationFees = "get_auction_creation_fees"
	MethodGetTreasuryBalance     = "get_treasury_balance"
)

// Manager is the auction registrar program. It deploys instances of its
// auction template, funds their storage reserves out of the creation fee, and
// reclaims the reserves into its treasury when finalized auctions are
// deleted. Fee revenue above the registrar's own reserve is withdrawable by
// its creator.
type Manager struct {
	template Auction
}

// NewManager returns a registrar configured with the auction template it
// deploys.
func NewManager() Manager {
	return Manager{template: Auction{}}
}

func (Manager) Name() string { return ManagerName }

// OnCreate is a no-op: the registrar keeps no global state of its own.
func (Manager) OnCreate(c *ledger.Call, args [][]byte) error { return nil }

// OnDelete always rejects. Deleting the registrar would orphan the auctions
// it created, since only their creator can delete them.
func (Manager) OnDelete(c *ledger.Call) error {
	return fmt.Errorf("the auction registrar cannot be deleted: %w", ledger.ErrInvalidState)
}

func (m Manager) Call(c *ledger.Call, method string, args [][]byte) ([]byte, error) {
	switch method {
	case MethodCreateAuction:
		return m.createAuction(c)
	case MethodDeleteFinalizedAuction:
		return nil, m.deleteFinalizedAuction(c, args)
	case MethodWithdrawAlgo:
		return nil, m.withdrawAlgo(c, args)
	case MethodGetAuctionCreationFees:
		return ledger.Uint64Arg(uint64(StorageFees())), nil
	case MethodGetTreasuryBalance:
		return ledger.Uint64Arg(uint64(m.treasury(c))), nil
	case MethodAppName:
		return ledger.StringArg(ManagerName), nil
	default:
		return nil, fmt.Errorf("unknown method %q: %w", method, ledger.ErrInvalidArgument)
	}
}

// createAuction deploys a new auction with the caller as seller. The payment
// immediately preceding this call in its group pays the creation fee; the fee
// funds the auction's storage reserve, and any surplus stays with the
// registrar as treasury revenue.
func (m Manager) createAuction(c *ledger.Call) ([]byte, error) {
	payment, err := c.PrecedingPayment()
	if err != nil {
		return nil, fmt.Errorf("creation fee: %w", err)
	}
	if payment.Receiver != c.AppAddress() {
		return nil, fmt.Errorf("creation fee pays %s, not the registrar: %w", payment.Receiver, ledger.ErrInvalidArgument)
	}
	fees := StorageFees()
	if payment.Amount < fees {
		return nil, fmt.Errorf("creation fee is %s ALGO, got %s ALGO: %w",
			fees.Algos(), payment.Amount.Algos(), ledger.ErrInsufficientFunds)
	}
	id, err := c.CreateApp(m.template, StateSchema(), ledger.AddressArg(c.Sender()))
	if err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}
	if err := c.Pay(ledger.AppAddress(id), fees); err != nil {
		return nil, fmt.Errorf("fund auction reserve: %w", err)
	}
	return ledger.Uint64Arg(uint64(id)), nil
}

// deleteFinalizedAuction deletes an auction this registrar created and
// reclaims its remaining balance into the treasury. Anyone may call it; the
// auction itself rejects deletion unless it is terminal and empty.
func (Manager) deleteFinalizedAuction(c *ledger.Call, args [][]byte) error {
	if len(args) != 1 {
		return fmt.Errorf("delete_finalized_auction: want auction app arg: %w", ledger.ErrInvalidArgument)
	}
	id, err := ledger.ParseUint64Arg(args[0])
	if err != nil {
		return fmt.Errorf("delete_finalized_auction: %w", err)
	}
	if err := c.DeleteApp(ledger.AppID(id)); err != nil {
		return fmt.Errorf("delete auction %d: %w", id, err)
	}
	return nil
}

// withdrawAlgo pays treasury funds out to the registrar's creator.
func (m Manager) withdrawAlgo(c *ledger.Call, args [][]byte) error {
	if c.Sender() != c.Creator() {
		return fmt.Errorf("sender %s is not the registrar creator: %w", c.Sender(), ledger.ErrUnauthorized)
	}
	if len(args) != 1 {
		return fmt.Errorf("withdraw_algo: want amount arg: %w", ledger.ErrInvalidArgument)
	}
	amount, err := ledger.ParseUint64Arg(args[0])
	if err != nil {
		return fmt.Errorf("withdraw_algo: %w", err)
	}
	if treasury := m.treasury(c); ledger.MicroAlgos(amount) > treasury {
		return fmt.Errorf("withdraw %d exceeds treasury balance %d: %w", amount, treasury, ledger.ErrInsufficientFunds)
	}
	return c.Pay(c.Sender(), ledger.MicroAlgos(amount))
}

// treasury is the registrar balance above its own reserve requirement.
func (Manager) treasury(c *ledger.Call) ledger.MicroAlgos {
	balance, reserve := c.Balance(), c.MinBalance()
	if balance <= reserve {
		return 0
	}
	return balance - reserve
}
