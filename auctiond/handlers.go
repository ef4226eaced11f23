package auctiond

import (
	"crypto/ed25519"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oysterpack/oysterpack-smart/api"
	"github.com/oysterpack/oysterpack-smart/auction"
	"github.com/oysterpack/oysterpack-smart/client"
	"github.com/oysterpack/oysterpack-smart/data"
	"github.com/oysterpack/oysterpack-smart/ledger"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, api.StatusOK)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req api.CreateAccountRequest
	if err := api.DecodeRequest(r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	view, err := s.createAccount(&req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, view)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	resp, err := s.listAccounts()
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFundAccount(w http.ResponseWriter, r *http.Request) {
	var req api.FundAccountRequest
	if err := api.DecodeRequest(r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	view, err := s.fundAccount(&req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req api.CreateAssetRequest
	if err := api.DecodeRequest(r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	view, err := s.createAsset(&req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, view)
}

func (s *Server) handleOptInAsset(w http.ResponseWriter, r *http.Request) {
	var req api.OptInAssetRequest
	if err := api.DecodeRequest(r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	resp, err := s.optInAsset(&req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreationFees(w http.ResponseWriter, r *http.Request) {
	fees, err := s.manager.CreationFees()
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.NewAmountView(fees))
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	balance, err := s.manager.TreasuryBalance()
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.NewAmountView(balance))
}

func (s *Server) handleWithdrawTreasury(w http.ResponseWriter, r *http.Request) {
	var req api.WithdrawTreasuryRequest
	if err := api.DecodeRequest(r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	view, err := s.withdrawTreasury(&req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	var req api.CreateAuctionRequest
	if err := api.DecodeRequest(r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	resp, err := s.createAuction(&req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSearchAuctions(w http.ResponseWriter, r *http.Request) {
	req := api.SearchAuctionsRequest{
		Status: r.URL.Query().Get("status"),
		Seller: r.URL.Query().Get("seller"),
	}
	var err error
	if req.Limit, err = queryInt(r, "limit"); err != nil {
		api.WriteError(w, err)
		return
	}
	if req.Offset, err = queryInt(r, "offset"); err != nil {
		api.WriteError(w, err)
		return
	}

	resp, err := s.searchAuctions(&req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	appID, err := appIDParam(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	view, err := s.getAuction(appID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteAuction(w http.ResponseWriter, r *http.Request) {
	appID, err := appIDParam(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	var req api.DeleteAuctionRequest
	if err := api.DecodeRequest(r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	resp, err := s.deleteAuction(appID, &req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetBidAsset(w http.ResponseWriter, r *http.Request) {
	appID, err := appIDParam(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	var req api.SetBidAssetRequest
	if err := api.DecodeRequest(r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	view, err := s.setBidAsset(appID, &req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleAuctionOptIn(w http.ResponseWriter, r *http.Request) {
	s.serveTransferOp(w, r, s.auctionOptIn)
}

func (s *Server) handleAuctionOptOut(w http.ResponseWriter, r *http.Request) {
	s.serveTransferOp(w, r, s.auctionOptOut)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.serveTransferOp(w, r, s.deposit)
}

func (s *Server) handleWithdrawAsset(w http.ResponseWriter, r *http.Request) {
	s.serveTransferOp(w, r, s.withdrawAsset)
}

// serveTransferOp factors the shared shape of the four seller asset
// operations: decode, run the operation, respond with the refreshed view.
func (s *Server) serveTransferOp(w http.ResponseWriter, r *http.Request, op func(ledger.AppID, *api.AssetTransferRequest) (api.AuctionView, error)) {
	appID, err := appIDParam(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	var req api.AssetTransferRequest
	if err := api.DecodeRequest(r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	view, err := op(appID, &req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	appID, err := appIDParam(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	var req api.CommitRequest
	if err := api.DecodeRequest(r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	view, err := s.commit(appID, &req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	appID, err := appIDParam(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	var req api.BidRequest
	if err := api.DecodeRequest(r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	view, err := s.bid(appID, &req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleAcceptBid(w http.ResponseWriter, r *http.Request) {
	s.serveActionOp(w, r, s.acceptBid)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.serveActionOp(w, r, s.cancel)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	s.serveActionOp(w, r, s.finalize)
}

func (s *Server) serveActionOp(w http.ResponseWriter, r *http.Request, op func(ledger.AppID, *api.AuctionActionRequest) (api.AuctionView, error)) {
	appID, err := appIDParam(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	var req api.AuctionActionRequest
	if err := api.DecodeRequest(r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	view, err := op(appID, &req)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, view)
}

func appIDParam(r *http.Request) (ledger.AppID, error) {
	raw := chi.URLParam(r, "appID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid auction id %q: %w", raw, ledger.ErrInvalidArgument)
	}
	return ledger.AppID(id), nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, ledger.ErrInvalidArgument)
	}
	return n, nil
}

// ---- service layer, shared by the HTTP and vsock surfaces ----

func (s *Server) createAccount(req *api.CreateAccountRequest) (api.AccountView, error) {
	_, key, err := ed25519.GenerateKey(nil)
	if err != nil {
		return api.AccountView{}, fmt.Errorf("generate account key: %w", err)
	}
	account, err := s.keys.Create(req.Name, key, s.passphrase)
	if err != nil {
		return api.AccountView{}, err
	}
	log.Printf("INFO: account %q created at %s", account.Name, account.Address)
	return s.accountView(account.Name, account.Address), nil
}

func (s *Server) listAccounts() (api.AccountsResponse, error) {
	infos, err := s.keys.List()
	if err != nil {
		return api.AccountsResponse{}, err
	}
	resp := api.AccountsResponse{Accounts: make([]api.AccountView, 0, len(infos))}
	for _, info := range infos {
		resp.Accounts = append(resp.Accounts, s.accountView(info.Name, info.Address))
	}
	return resp, nil
}

func (s *Server) fundAccount(req *api.FundAccountRequest) (api.AccountView, error) {
	amount := req.Amount
	if amount == 0 {
		amount = s.cfg.FaucetAmount
	}
	addr := ledger.Address(req.Address)
	s.ledger.Fund(addr, ledger.MicroAlgos(amount))
	log.Printf("INFO: faucet granted %d to %s", amount, addr)
	return s.accountView("", addr), nil
}

func (s *Server) createAsset(req *api.CreateAssetRequest) (api.AssetView, error) {
	creator, err := s.resolveAccount(req.Creator)
	if err != nil {
		return api.AssetView{}, err
	}
	id, err := s.ledger.CreateAsset(creator, ledger.AssetParams{
		Name:     req.Name,
		UnitName: req.UnitName,
		Total:    req.Total,
		Decimals: req.Decimals,
	})
	if err != nil {
		return api.AssetView{}, err
	}
	params, err := s.ledger.Asset(id)
	if err != nil {
		return api.AssetView{}, err
	}
	log.Printf("INFO: asset %d (%s) minted by %q", id, params.Name, req.Creator)
	return api.AssetViewFromParams(params), nil
}

func (s *Server) optInAsset(req *api.OptInAssetRequest) (api.StatusResponse, error) {
	addr, err := s.resolveAccount(req.Account)
	if err != nil {
		return api.StatusResponse{}, err
	}
	optIn := ledger.NewAssetOptIn(addr, ledger.AssetID(req.AssetID))
	if _, err := s.ledger.Execute([]ledger.Transaction{optIn}); err != nil {
		return api.StatusResponse{}, err
	}
	return api.StatusOK, nil
}

func (s *Server) createAuction(req *api.CreateAuctionRequest) (api.CreateAuctionResponse, error) {
	seller, err := s.resolveAccount(req.Seller)
	if err != nil {
		return api.CreateAuctionResponse{}, err
	}
	mc, err := client.ConnectManager(s.ledger, s.manager.AppID(), seller)
	if err != nil {
		return api.CreateAuctionResponse{}, err
	}
	ac, err := mc.CreateAuction()
	if err != nil {
		return api.CreateAuctionResponse{}, err
	}
	s.metrics.auctionsCreated.Inc()
	if err := s.indexAuction(ac.AppID()); err != nil {
		return api.CreateAuctionResponse{}, err
	}
	log.Printf("INFO: auction %d created for seller %q", ac.AppID(), req.Seller)
	return api.CreateAuctionResponse{
		AppID:   uint64(ac.AppID()),
		Address: string(ac.Address()),
	}, nil
}

func (s *Server) withdrawTreasury(req *api.WithdrawTreasuryRequest) (api.AmountView, error) {
	addr, err := s.resolveAccount(req.Account)
	if err != nil {
		return api.AmountView{}, err
	}
	mc, err := client.ConnectManager(s.ledger, s.manager.AppID(), addr)
	if err != nil {
		return api.AmountView{}, err
	}
	if err := mc.WithdrawAlgo(ledger.MicroAlgos(req.Amount)); err != nil {
		return api.AmountView{}, err
	}
	remaining, err := mc.TreasuryBalance()
	if err != nil {
		return api.AmountView{}, err
	}
	log.Printf("INFO: treasury withdrawal of %d by %q", req.Amount, req.Account)
	return api.NewAmountView(remaining), nil
}

func (s *Server) deleteAuction(appID ledger.AppID, req *api.DeleteAuctionRequest) (api.StatusResponse, error) {
	addr, err := s.resolveAccount(req.Account)
	if err != nil {
		return api.StatusResponse{}, err
	}
	mc, err := client.ConnectManager(s.ledger, s.manager.AppID(), addr)
	if err != nil {
		return api.StatusResponse{}, err
	}
	if err := mc.DeleteFinalizedAuction(appID); err != nil {
		return api.StatusResponse{}, err
	}
	if err := s.store.DeleteAuction(appID); err != nil {
		return api.StatusResponse{}, err
	}
	s.refreshOpenAuctions()
	log.Printf("INFO: auction %d deleted by %q", appID, req.Account)
	return api.StatusOK, nil
}

func (s *Server) setBidAsset(appID ledger.AppID, req *api.SetBidAssetRequest) (api.AuctionView, error) {
	ac, err := s.auctionClient(appID, req.Account)
	if err != nil {
		return api.AuctionView{}, err
	}
	if err := ac.SetBidAsset(ledger.AssetID(req.AssetID), req.MinBid); err != nil {
		return api.AuctionView{}, err
	}
	return s.syncAuction(appID)
}

func (s *Server) auctionOptIn(appID ledger.AppID, req *api.AssetTransferRequest) (api.AuctionView, error) {
	ac, err := s.auctionClient(appID, req.Account)
	if err != nil {
		return api.AuctionView{}, err
	}
	if err := ac.OptInAsset(ledger.AssetID(req.AssetID)); err != nil {
		return api.AuctionView{}, err
	}
	return s.syncAuction(appID)
}

func (s *Server) auctionOptOut(appID ledger.AppID, req *api.AssetTransferRequest) (api.AuctionView, error) {
	ac, err := s.auctionClient(appID, req.Account)
	if err != nil {
		return api.AuctionView{}, err
	}
	if err := ac.OptOutAsset(ledger.AssetID(req.AssetID)); err != nil {
		return api.AuctionView{}, err
	}
	return s.syncAuction(appID)
}

func (s *Server) deposit(appID ledger.AppID, req *api.AssetTransferRequest) (api.AuctionView, error) {
	if req.Amount == 0 {
		return api.AuctionView{}, fmt.Errorf("amount must be positive: %w", ledger.ErrInvalidArgument)
	}
	ac, err := s.auctionClient(appID, req.Account)
	if err != nil {
		return api.AuctionView{}, err
	}
	if err := ac.Deposit(ledger.AssetID(req.AssetID), req.Amount); err != nil {
		return api.AuctionView{}, err
	}
	return s.syncAuction(appID)
}

func (s *Server) withdrawAsset(appID ledger.AppID, req *api.AssetTransferRequest) (api.AuctionView, error) {
	if req.Amount == 0 {
		return api.AuctionView{}, fmt.Errorf("amount must be positive: %w", ledger.ErrInvalidArgument)
	}
	ac, err := s.auctionClient(appID, req.Account)
	if err != nil {
		return api.AuctionView{}, err
	}
	if err := ac.WithdrawAsset(ledger.AssetID(req.AssetID), req.Amount); err != nil {
		return api.AuctionView{}, err
	}
	return s.syncAuction(appID)
}

func (s *Server) acceptBid(appID ledger.AppID, req *api.AuctionActionRequest) (api.AuctionView, error) {
	ac, err := s.auctionClient(appID, req.Account)
	if err != nil {
		return api.AuctionView{}, err
	}
	if err := ac.AcceptBid(); err != nil {
		return api.AuctionView{}, err
	}
	log.Printf("INFO: auction %d: winning bid accepted by %q", appID, req.Account)
	return s.syncAuction(appID)
}

func (s *Server) cancel(appID ledger.AppID, req *api.AuctionActionRequest) (api.AuctionView, error) {
	ac, err := s.auctionClient(appID, req.Account)
	if err != nil {
		return api.AuctionView{}, err
	}
	if err := ac.Cancel(); err != nil {
		return api.AuctionView{}, err
	}
	log.Printf("INFO: auction %d: cancelled by %q", appID, req.Account)
	return s.syncAuction(appID)
}

func (s *Server) finalize(appID ledger.AppID, req *api.AuctionActionRequest) (api.AuctionView, error) {
	ac, err := s.auctionClient(appID, req.Account)
	if err != nil {
		return api.AuctionView{}, err
	}
	if err := ac.Finalize(); err != nil {
		return api.AuctionView{}, err
	}
	log.Printf("INFO: auction %d: settled by %q", appID, req.Account)
	return s.syncAuction(appID)
}

func (s *Server) commit(appID ledger.AppID, req *api.CommitRequest) (api.AuctionView, error) {
	start, end, err := req.Window()
	if err != nil {
		return api.AuctionView{}, err
	}
	ac, err := s.auctionClient(appID, req.Account)
	if err != nil {
		return api.AuctionView{}, err
	}
	if err := ac.Commit(start, end); err != nil {
		return api.AuctionView{}, err
	}
	log.Printf("INFO: auction %d committed, bidding closes %s", appID, end.UTC().Format(time.RFC3339))
	return s.syncAuction(appID)
}

func (s *Server) bid(appID ledger.AppID, req *api.BidRequest) (api.AuctionView, error) {
	addr, err := s.resolveAccount(req.Account)
	if err != nil {
		return api.AuctionView{}, err
	}
	bidder, err := client.ConnectBidder(s.ledger, appID, addr)
	if err != nil {
		return api.AuctionView{}, err
	}
	if err := bidder.OptInBidAsset(); err != nil {
		s.metrics.bidsRejected.Inc()
		return api.AuctionView{}, err
	}
	if err := bidder.Bid(req.Amount); err != nil {
		s.metrics.bidsRejected.Inc()
		return api.AuctionView{}, err
	}
	s.metrics.bidsAccepted.Inc()
	log.Printf("INFO: auction %d: bid %d placed by %q", appID, req.Amount, req.Account)
	return s.syncAuction(appID)
}

func (s *Server) getAuction(appID ledger.AppID) (api.AuctionView, error) {
	rec, err := s.store.GetAuction(appID)
	if err != nil {
		return api.AuctionView{}, err
	}
	return api.AuctionViewFromRecord(rec), nil
}

func (s *Server) searchAuctions(req *api.SearchAuctionsRequest) (api.AuctionsResponse, error) {
	filter, err := req.Filter()
	if err != nil {
		return api.AuctionsResponse{}, err
	}
	records, err := s.store.SearchAuctions(filter)
	if err != nil {
		return api.AuctionsResponse{}, err
	}
	resp := api.AuctionsResponse{Auctions: make([]api.AuctionView, 0, len(records))}
	for _, rec := range records {
		resp.Auctions = append(resp.Auctions, api.AuctionViewFromRecord(rec))
	}
	return resp, nil
}

// ---- shared plumbing ----

func (s *Server) accountView(name string, addr ledger.Address) api.AccountView {
	return api.AccountView{
		Name:    name,
		Address: string(addr),
		Balance: uint64(s.ledger.AccountBalance(addr)),
	}
}

func (s *Server) resolveAccount(name string) (ledger.Address, error) {
	info, err := s.keys.Info(name)
	if err != nil {
		return "", err
	}
	return info.Address, nil
}

func (s *Server) auctionClient(appID ledger.AppID, account string) (*client.AuctionClient, error) {
	addr, err := s.resolveAccount(account)
	if err != nil {
		return nil, err
	}
	return client.ConnectAuction(s.ledger, appID, addr)
}

// indexAuction snapshots an auction's state and holdings into the store.
func (s *Server) indexAuction(appID ledger.AppID) error {
	ac, err := client.ConnectAuction(s.ledger, appID, s.operator.Address)
	if err != nil {
		return err
	}
	st, err := ac.State()
	if err != nil {
		return err
	}
	assets := ac.Assets()
	holdings := make([]data.Holding, 0, len(assets))
	for _, h := range assets {
		holdings = append(holdings, data.Holding{AssetID: h.AssetID, Amount: h.Amount})
	}
	rec := data.RecordFromState(appID, s.manager.Address(), st, holdings, time.Now().UTC())
	return s.store.UpsertAuction(rec)
}

// syncAuction re-indexes after a mutation and returns the refreshed view.
func (s *Server) syncAuction(appID ledger.AppID) (api.AuctionView, error) {
	if err := s.indexAuction(appID); err != nil {
		return api.AuctionView{}, err
	}
	rec, err := s.store.GetAuction(appID)
	if err != nil {
		return api.AuctionView{}, err
	}
	s.refreshOpenAuctions()
	return api.AuctionViewFromRecord(rec), nil
}

func (s *Server) refreshOpenAuctions() {
	open, err := s.store.SearchAuctions(data.Filter{Status: auction.StatusCommitted, Limit: 1 << 30})
	if err != nil {
		log.Printf("ERROR: refresh open auction gauge: %v", err)
		return
	}
	s.metrics.openAuctions.Set(float64(len(open)))
}
