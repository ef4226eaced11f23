package auctiond

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/oysterpack/oysterpack-smart/api"
	"github.com/oysterpack/oysterpack-smart/ledger"
)

// vsockMaxWorkers caps concurrent vsock connections. Connections beyond the
// cap are rejected immediately rather than queued.
const vsockMaxWorkers = 32

const vsockReadTimeout = 30 * time.Second

// vsockRequest is the wire envelope for the vsock control surface. Op selects
// the operation, AppID addresses an auction where one is required, and Body
// carries the same JSON payload the HTTP surface accepts for that operation.
type vsockRequest struct {
	Op    string          `json:"op"`
	AppID uint64          `json:"app_id,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
}

type vsockResponse struct {
	OK     bool               `json:"ok"`
	Result any                `json:"result,omitempty"`
	Error  *api.ErrorResponse `json:"error,omitempty"`
}

// StartVsock serves the control surface on the configured vsock port. It
// blocks until the listener fails.
func (s *Server) StartVsock() error {
	ln, err := vsock.Listen(s.cfg.VsockPort, nil)
	if err != nil {
		return fmt.Errorf("listen on vsock port %d: %w", s.cfg.VsockPort, err)
	}
	log.Printf("INFO: vsock control surface listening on port %d", s.cfg.VsockPort)
	return s.ServeListener(ln)
}

// ServeListener runs the accept loop on ln until the listener closes. Split
// from StartVsock so tests can drive the protocol over an ordinary listener.
func (s *Server) ServeListener(ln net.Listener) error {
	defer func() {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("ERROR: close vsock listener: %v", err)
		}
	}()

	semaphore := make(chan struct{}, vsockMaxWorkers)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("ERROR: accept vsock connection: %v", err)
			continue
		}

		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.serveConn(c)
			}(conn)
		default:
			log.Printf("WARNING: no workers available, rejecting vsock connection")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: close rejected connection: %v", err)
			}
		}
	}
}

// serveConn handles one request/response exchange and closes the connection.
func (s *Server) serveConn(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: panic recovered in vsock handler: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: close vsock connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(vsockReadTimeout))

	var req vsockRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Printf("ERROR: decode vsock request: %v", err)
		return
	}

	var resp vsockResponse
	result, err := s.dispatch(&req)
	if err != nil {
		resp.Error = &api.ErrorResponse{Kind: api.ErrorKind(err), Error: err.Error()}
		log.Printf("ERROR: vsock op %q failed: %v", req.Op, err)
	} else {
		resp.OK = true
		resp.Result = result
	}

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Printf("ERROR: encode vsock response: %v", err)
	}
}

func (s *Server) dispatch(req *vsockRequest) (any, error) {
	switch req.Op {
	case "ping":
		return map[string]any{
			"message":   "auction daemon is healthy",
			"timestamp": time.Now().Unix(),
		}, nil

	case "create_account":
		var r api.CreateAccountRequest
		if err := decodeBody(req.Body, &r); err != nil {
			return nil, err
		}
		return s.createAccount(&r)

	case "list_accounts":
		return s.listAccounts()

	case "fund_account":
		var r api.FundAccountRequest
		if err := decodeBody(req.Body, &r); err != nil {
			return nil, err
		}
		return s.fundAccount(&r)

	case "create_asset":
		var r api.CreateAssetRequest
		if err := decodeBody(req.Body, &r); err != nil {
			return nil, err
		}
		return s.createAsset(&r)

	case "optin_asset":
		var r api.OptInAssetRequest
		if err := decodeBody(req.Body, &r); err != nil {
			return nil, err
		}
		return s.optInAsset(&r)

	case "creation_fees":
		fees, err := s.manager.CreationFees()
		if err != nil {
			return nil, err
		}
		return api.NewAmountView(fees), nil

	case "treasury":
		balance, err := s.manager.TreasuryBalance()
		if err != nil {
			return nil, err
		}
		return api.NewAmountView(balance), nil

	case "withdraw_treasury":
		var r api.WithdrawTreasuryRequest
		if err := decodeBody(req.Body, &r); err != nil {
			return nil, err
		}
		return s.withdrawTreasury(&r)

	case "create_auction":
		var r api.CreateAuctionRequest
		if err := decodeBody(req.Body, &r); err != nil {
			return nil, err
		}
		return s.createAuction(&r)

	case "search_auctions":
		var r api.SearchAuctionsRequest
		if err := decodeBody(req.Body, &r); err != nil {
			return nil, err
		}
		return s.searchAuctions(&r)

	case "get_auction":
		appID, err := reqAppID(req)
		if err != nil {
			return nil, err
		}
		return s.getAuction(appID)

	case "delete_auction":
		appID, err := reqAppID(req)
		if err != nil {
			return nil, err
		}
		var r api.DeleteAuctionRequest
		if err := decodeBody(req.Body, &r); err != nil {
			return nil, err
		}
		return s.deleteAuction(appID, &r)

	case "set_bid_asset":
		appID, err := reqAppID(req)
		if err != nil {
			return nil, err
		}
		var r api.SetBidAssetRequest
		if err := decodeBody(req.Body, &r); err != nil {
			return nil, err
		}
		return s.setBidAsset(appID, &r)

	case "auction_optin":
		return s.transferOp(req, s.auctionOptIn)

	case "auction_optout":
		return s.transferOp(req, s.auctionOptOut)

	case "deposit":
		return s.transferOp(req, s.deposit)

	case "withdraw_asset":
		return s.transferOp(req, s.withdrawAsset)

	case "commit":
		appID, err := reqAppID(req)
		if err != nil {
			return nil, err
		}
		var r api.CommitRequest
		if err := decodeBody(req.Body, &r); err != nil {
			return nil, err
		}
		return s.commit(appID, &r)

	case "bid":
		appID, err := reqAppID(req)
		if err != nil {
			return nil, err
		}
		var r api.BidRequest
		if err := decodeBody(req.Body, &r); err != nil {
			return nil, err
		}
		return s.bid(appID, &r)

	case "accept_bid":
		return s.actionOp(req, s.acceptBid)

	case "cancel":
		return s.actionOp(req, s.cancel)

	case "finalize":
		return s.actionOp(req, s.finalize)

	default:
		return nil, fmt.Errorf("unknown op %q: %w", req.Op, ledger.ErrInvalidArgument)
	}
}

func (s *Server) transferOp(req *vsockRequest, op func(ledger.AppID, *api.AssetTransferRequest) (api.AuctionView, error)) (any, error) {
	appID, err := reqAppID(req)
	if err != nil {
		return nil, err
	}
	var r api.AssetTransferRequest
	if err := decodeBody(req.Body, &r); err != nil {
		return nil, err
	}
	return op(appID, &r)
}

func (s *Server) actionOp(req *vsockRequest, op func(ledger.AppID, *api.AuctionActionRequest) (api.AuctionView, error)) (any, error) {
	appID, err := reqAppID(req)
	if err != nil {
		return nil, err
	}
	var r api.AuctionActionRequest
	if err := decodeBody(req.Body, &r); err != nil {
		return nil, err
	}
	return op(appID, &r)
}

func reqAppID(req *vsockRequest) (ledger.AppID, error) {
	if req.AppID == 0 {
		return 0, fmt.Errorf("op %q requires app_id: %w", req.Op, ledger.ErrInvalidArgument)
	}
	return ledger.AppID(req.AppID), nil
}

func decodeBody(body json.RawMessage, req api.Validator) error {
	if len(body) > 0 {
		if err := json.Unmarshal(body, req); err != nil {
			return fmt.Errorf("decode request body: %v: %w", err, ledger.ErrInvalidArgument)
		}
	}
	return req.Validate()
}
