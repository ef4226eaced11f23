package client

import (
	"fmt"

	"github.com/oysterpack/oysterpack-smart/auction"
	"github.com/oysterpack/oysterpack-smart/ledger"
)

// ManagerClient drives an auction registrar on behalf of one account.
type ManagerClient struct {
	ledger *ledger.Ledger
	app    ledger.AppID
	sender ledger.Address
}

// DeployManager registers a new auction registrar owned by creator and seeds
// the registrar account's base reserve from the creator's balance.
func DeployManager(l *ledger.Ledger, creator ledger.Address) (*ManagerClient, error) {
	id, err := l.CreateApp(creator, auction.NewManager(), ledger.StateSchema{})
	if err != nil {
		return nil, err
	}
	_, err = l.Execute([]ledger.Transaction{
		ledger.NewPayment(creator, ledger.AppAddress(id), ledger.MinBalanceAccountBase),
	})
	if err != nil {
		return nil, fmt.Errorf("seed registrar reserve: %w", err)
	}
	return &ManagerClient{ledger: l, app: id, sender: creator}, nil
}

// ConnectManager returns a client for an existing registrar, acting as
// sender.
func ConnectManager(l *ledger.Ledger, app ledger.AppID, sender ledger.Address) (*ManagerClient, error) {
	if !l.AppExists(app) {
		return nil, fmt.Errorf("application %d: %w", app, ledger.ErrNotFound)
	}
	return &ManagerClient{ledger: l, app: app, sender: sender}, nil
}

// AppID returns the registrar's application ID.
func (c *ManagerClient) AppID() ledger.AppID { return c.app }

// Address returns the registrar's account address.
func (c *ManagerClient) Address() ledger.Address { return ledger.AppAddress(c.app) }

// CreateAuction registers a new auction with the calling account as seller,
// paying the exact current creation fee. It returns a seller client bound to
// the new instance.
func (c *ManagerClient) CreateAuction() (*AuctionClient, error) {
	fees, err := c.CreationFees()
	if err != nil {
		return nil, err
	}
	pay := ledger.NewPayment(c.sender, c.Address(), fees)
	pay.Note = AppTxnNote{App: auction.ManagerName, Method: auction.MethodCreateAuction}.String()
	out, err := c.ledger.Execute([]ledger.Transaction{
		pay,
		c.call(auction.MethodCreateAuction),
	})
	if err != nil {
		return nil, err
	}
	id, err := ledger.ParseUint64Arg(out[1])
	if err != nil {
		return nil, fmt.Errorf("create_auction return value: %w", err)
	}
	return &AuctionClient{ledger: c.ledger, app: ledger.AppID(id), sender: c.sender}, nil
}

// CreationFees returns the fee the registrar currently charges to create an
// auction.
func (c *ManagerClient) CreationFees() (ledger.MicroAlgos, error) {
	out, err := c.ledger.Execute([]ledger.Transaction{c.call(auction.MethodGetAuctionCreationFees)})
	if err != nil {
		return 0, err
	}
	fees, err := ledger.ParseUint64Arg(out[0])
	if err != nil {
		return 0, fmt.Errorf("get_auction_creation_fees return value: %w", err)
	}
	return ledger.MicroAlgos(fees), nil
}

// TreasuryBalance returns the registrar's withdrawable fee revenue.
func (c *ManagerClient) TreasuryBalance() (ledger.MicroAlgos, error) {
	out, err := c.ledger.Execute([]ledger.Transaction{c.call(auction.MethodGetTreasuryBalance)})
	if err != nil {
		return 0, err
	}
	balance, err := ledger.ParseUint64Arg(out[0])
	if err != nil {
		return 0, fmt.Errorf("get_treasury_balance return value: %w", err)
	}
	return ledger.MicroAlgos(balance), nil
}

// WithdrawAlgo pays treasury funds out to the registrar's creator. Only the
// creator's client can withdraw.
func (c *ManagerClient) WithdrawAlgo(amount ledger.MicroAlgos) error {
	_, err := c.ledger.Execute([]ledger.Transaction{
		c.call(auction.MethodWithdrawAlgo, ledger.Uint64Arg(uint64(amount))),
	})
	return err
}

// DeleteFinalizedAuction deletes a terminal auction, reclaiming its algo
// balance into the registrar treasury.
func (c *ManagerClient) DeleteFinalizedAuction(id ledger.AppID) error {
	_, err := c.ledger.Execute([]ledger.Transaction{
		c.call(auction.MethodDeleteFinalizedAuction, ledger.Uint64Arg(uint64(id))),
	})
	return err
}

// AppName returns the registrar application's self-reported name.
func (c *ManagerClient) AppName() (string, error) {
	out, err := c.ledger.Execute([]ledger.Transaction{c.call(auction.MethodAppName)})
	if err != nil {
		return "", err
	}
	return ledger.ParseStringArg(out[0])
}

func (c *ManagerClient) call(method string, args ...[]byte) ledger.Transaction {
	txn := ledger.NewAppCall(c.sender, c.app, method, args...)
	txn.Note = AppTxnNote{App: auction.ManagerName, Method: method}.String()
	return txn
}
