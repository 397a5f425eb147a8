package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudx-io/streamauction/auctionapi"
	"github.com/cloudx-io/streamauction/core"
	"github.com/cloudx-io/streamauction/viewer"
)

// ViewerHandler serves the read-only leaderboard API and the live feed.
type ViewerHandler struct {
	service *Service
	viewer  viewer.Directory
	feed    *Feed
}

// NewViewerHandler returns a handler over svc.
func NewViewerHandler(svc *Service, dir viewer.Directory, feed *Feed) *ViewerHandler {
	return &ViewerHandler{service: svc, viewer: dir, feed: feed}
}

// RegisterRoutes mounts the viewer API and /metrics on r.
func (h *ViewerHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Recoverer)

	r.Route("/auctions/{id}", func(r chi.Router) {
		r.Get("/bidders", h.listBidders)
		r.Get("/bidders/{account}", h.bidderInfo)
		r.Get("/winner", h.winner)
		r.Get("/feed", h.serveFeed)
	})
	r.Handle("/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to encode HTTP response: %v", err)
	}
}

func (h *ViewerHandler) ownAuction(w http.ResponseWriter, r *http.Request) bool {
	if id := chi.URLParam(r, "id"); id != h.service.AuctionID() {
		http.Error(w, fmt.Sprintf("Unknown auction: %s", id), http.StatusNotFound)
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, value)
	}
	return n, nil
}

func (h *ViewerHandler) listBidders(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	count, err := queryInt(r, "count")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	auctionID := chi.URLParam(r, "id")
	rows, err := viewer.ListBidders(h.viewer, auctionID, offset, count)
	switch {
	case errors.Is(err, viewer.ErrUnknownAuction):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, auctionapi.QueryResponse{
		Type:      auctionapi.RequestListBidders + "_response",
		Success:   true,
		AuctionID: auctionID,
		Bidders:   newBidderViews(rows),
	})
}

func (h *ViewerHandler) bidderInfo(w http.ResponseWriter, r *http.Request) {
	if !h.ownAuction(w, r) {
		return
	}
	account, err := auctionapi.ParseAddress(chi.URLParam(r, "account"))
	if err != nil || account == core.NoBidder {
		http.Error(w, fmt.Sprintf("Invalid account: %s", chi.URLParam(r, "account")), http.StatusBadRequest)
		return
	}

	info, ok := h.service.BidderInfo(account)
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown bidder: %s", account.Hex()), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, auctionapi.NewBidderInfoView(info))
}

func (h *ViewerHandler) winner(w http.ResponseWriter, r *http.Request) {
	if !h.ownAuction(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, h.service.Winner())
}

func (h *ViewerHandler) serveFeed(w http.ResponseWriter, r *http.Request) {
	if !h.ownAuction(w, r) {
		return
	}
	h.feed.ServeWS(w, r, h.service.FeedSnapshot())
}
