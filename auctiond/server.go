package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/mdlayher/vsock"
	"github.com/sugawarayuuta/sonnet"

	"github.com/cloudx-io/streamauction/auctionapi"
	"github.com/cloudx-io/streamauction/core"
	"github.com/cloudx-io/streamauction/viewer"
)

const (
	requestTimeout = 30 * time.Second
	maxClockSkew   = 30 * time.Second
)

// AuctionServer accepts one JSON request per connection from the stream host and answers
// with one JSON response.
type AuctionServer struct {
	service    *Service
	viewer     viewer.Directory
	maxWorkers int
}

// NewAuctionServer serves svc; list_bidders requests are resolved through dir.
func NewAuctionServer(svc *Service, dir viewer.Directory, maxWorkers int) *AuctionServer {
	return &AuctionServer{service: svc, viewer: dir, maxWorkers: maxWorkers}
}

// listen opens the vsock listener inside an enclave, a TCP listener otherwise.
func listen(cfg *DaemonConfig) (net.Listener, error) {
	if cfg.VsockPort != 0 {
		listener, err := vsock.Listen(cfg.VsockPort, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		log.Printf("INFO: Auction server listening on vsock port %d", cfg.VsockPort)
		return listener, nil
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create tcp listener: %w", err)
	}
	log.Printf("INFO: Auction server listening on %s", listener.Addr())
	return listener, nil
}

// Serve accepts connections until the listener is closed.
func (s *AuctionServer) Serve(listener net.Listener) error {
	semaphore := make(chan struct{}, s.maxWorkers)
	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", s.maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("ERROR: Failed to accept connection: %v", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }() // Release worker slot
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			mtxRejectedConnections.Inc()
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *AuctionServer) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetDeadline(time.Now().Add(requestTimeout))

	var raw json.RawMessage
	if err := json.NewDecoder(conn).Decode(&raw); err != nil {
		log.Printf("ERROR: Failed to read request: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	response := s.dispatch(ctx, raw)

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

func errorMessage(message string) map[string]any {
	return map[string]any{
		"type":    "error",
		"message": message,
	}
}

// badRequest answers a request that could not be turned into a command.
func badRequest(requestType string, err error, start time.Time) auctionapi.CommandResponse {
	resp := auctionapi.NewErrorResponse(requestType, err, time.Since(start))
	resp.ErrorCode = "bad_request"
	return resp
}

func unknownAuction(requestType, auctionID string, start time.Time) auctionapi.CommandResponse {
	resp := auctionapi.NewErrorResponse(requestType, fmt.Errorf("%w: %s", viewer.ErrUnknownAuction, auctionID), time.Since(start))
	resp.ErrorCode = "unknown_auction"
	return resp
}

// servesAuction accepts the daemon's own auction id, or no id at all.
func (s *AuctionServer) servesAuction(auctionID string) bool {
	return auctionID == "" || auctionID == s.service.AuctionID()
}

func checkSkew(requestType string, sent time.Time) {
	if sent.IsZero() {
		return
	}
	if skew := time.Since(sent); skew > maxClockSkew || skew < -maxClockSkew {
		log.Printf("WARNING: %s sent at %s, %s from local time", requestType, sent.Format(time.RFC3339), skew.Round(time.Second))
	}
}

func (s *AuctionServer) dispatch(ctx context.Context, raw []byte) any {
	start := time.Now()

	var baseReq struct {
		Type string `json:"type"`
	}
	if err := sonnet.Unmarshal(raw, &baseReq); err != nil {
		log.Printf("ERROR: Failed to decode base request: %v", err)
		return errorMessage(fmt.Sprintf("Failed to decode request: %v", err))
	}

	log.Printf("INFO: Received request type: %s", baseReq.Type)

	switch baseReq.Type {
	case auctionapi.RequestPing:
		return map[string]any{
			"type":       "pong",
			"message":    "auction server is healthy",
			"auction_id": s.service.AuctionID(),
			"timestamp":  time.Now().Unix(),
		}

	case auctionapi.RequestStreamEvent:
		var req auctionapi.StreamEventRequest
		if err := sonnet.Unmarshal(raw, &req); err != nil {
			return badRequest(baseReq.Type, fmt.Errorf("failed to decode stream event: %w", err), start)
		}
		if !s.servesAuction(req.AuctionID) {
			return unknownAuction(baseReq.Type, req.AuctionID, start)
		}
		checkSkew(baseReq.Type, req.Timestamp)
		ev, err := req.ToCoreEvent()
		if err != nil {
			return badRequest(baseReq.Type, err, start)
		}
		return s.service.StreamEvent(ctx, ev)

	case auctionapi.RequestWithdraw, auctionapi.RequestWithdrawNonWinner, auctionapi.RequestFinish, auctionapi.RequestStop:
		var req auctionapi.AdminRequest
		if err := sonnet.Unmarshal(raw, &req); err != nil {
			return badRequest(baseReq.Type, fmt.Errorf("failed to decode %s request: %w", baseReq.Type, err), start)
		}
		if !s.servesAuction(req.AuctionID) {
			return unknownAuction(baseReq.Type, req.AuctionID, start)
		}
		checkSkew(baseReq.Type, req.Timestamp)
		caller, err := auctionapi.ParseAddress(req.Caller)
		if err != nil {
			return badRequest(baseReq.Type, fmt.Errorf("caller: %w", err), start)
		}
		return s.service.Admin(ctx, baseReq.Type, caller)

	case auctionapi.RequestBidderInfo, auctionapi.RequestListBidders:
		var req auctionapi.QueryRequest
		if err := sonnet.Unmarshal(raw, &req); err != nil {
			return s.queryError(baseReq.Type, req.AuctionID, fmt.Errorf("failed to decode query: %w", err))
		}
		return s.query(baseReq.Type, req)

	case auctionapi.RequestCheckpoint:
		var req auctionapi.CheckpointRequest
		if err := sonnet.Unmarshal(raw, &req); err != nil {
			return errorMessage(fmt.Sprintf("Failed to decode checkpoint request: %v", err))
		}
		if !s.servesAuction(req.AuctionID) {
			return errorMessage(fmt.Sprintf("%v: %s", viewer.ErrUnknownAuction, req.AuctionID))
		}
		return s.service.Checkpoint(req.Attest)

	default:
		return errorMessage(fmt.Sprintf("Unknown request type: %s", baseReq.Type))
	}
}

func (s *AuctionServer) queryError(requestType, auctionID string, err error) auctionapi.QueryResponse {
	return auctionapi.QueryResponse{
		Type:      requestType + "_response",
		Success:   false,
		Message:   err.Error(),
		AuctionID: auctionID,
	}
}

func (s *AuctionServer) query(requestType string, req auctionapi.QueryRequest) auctionapi.QueryResponse {
	auctionID := req.AuctionID
	if auctionID == "" {
		auctionID = s.service.AuctionID()
	}

	var resp auctionapi.QueryResponse
	switch requestType {
	case auctionapi.RequestBidderInfo:
		if !s.servesAuction(auctionID) {
			return s.queryError(requestType, auctionID, fmt.Errorf("%w: %s", viewer.ErrUnknownAuction, auctionID))
		}
		account, err := auctionapi.ParseAddress(req.Account)
		if err != nil || account == core.NoBidder {
			return s.queryError(requestType, auctionID, fmt.Errorf("invalid account %q", req.Account))
		}
		info, ok := s.service.BidderInfo(account)
		if !ok {
			return s.queryError(requestType, auctionID, fmt.Errorf("unknown bidder %s", account.Hex()))
		}
		resp.Bidder = auctionapi.NewBidderInfoView(info)

	case auctionapi.RequestListBidders:
		rows, err := viewer.ListBidders(s.viewer, auctionID, req.Offset, req.Count)
		if err != nil {
			return s.queryError(requestType, auctionID, err)
		}
		resp.Bidders = newBidderViews(rows)
	}

	winner := s.service.Winner()
	resp.Type = requestType + "_response"
	resp.Success = true
	resp.AuctionID = auctionID
	resp.Winner = winner.Winner
	resp.Finished = winner.Finished
	return resp
}
