package auctionapi

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"time"
)

// Request types accepted by the auction daemon.
const (
	RequestPing              = "ping"
	RequestStreamEvent       = "stream_event"
	RequestWithdraw          = "withdraw"
	RequestWithdrawNonWinner = "withdraw_non_winner"
	RequestFinish            = "finish"
	RequestStop              = "stop"
	RequestBidderInfo        = "bidder_info"
	RequestListBidders       = "list_bidders"
	RequestCheckpoint        = "checkpoint"
)

// StreamEventRequest carries one lifecycle notification from the stream host.
type StreamEventRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`

	// Event is one of "admitted", "adjusted", "exited", "forced_exit".
	Event   string `json:"event"`
	Account string `json:"account"`
	Rate    string `json:"rate,omitempty"` // decimal string, value units per second

	// UserData is the hex-encoded payload attached to the stream operation. When present it
	// carries the ABI-encoded position hint.
	UserData string `json:"user_data,omitempty"`
	// Hint may be given directly instead of through UserData.
	Hint string `json:"hint,omitempty"`

	Terminator string    `json:"terminator,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// AdminRequest is used for withdraw, withdraw_non_winner, finish and stop.
type AdminRequest struct {
	Type      string    `json:"type"`
	AuctionID string    `json:"auction_id"`
	Caller    string    `json:"caller,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// QueryRequest is used for bidder_info and list_bidders.
type QueryRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	Account   string `json:"account,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	Count     int    `json:"count,omitempty"`
}

// CheckpointRequest asks the daemon for a signed checkpoint of the current state.
type CheckpointRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	// Attest requests an NSM attestation over the checkpoint digest as well.
	Attest bool `json:"attest,omitempty"`
}

// InstructionView is one follow-up action for the stream host.
type InstructionView struct {
	Kind    string `json:"kind"`
	Account string `json:"account"`
	Rate    string `json:"rate,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

// CommandResponse is returned for every mutating request.
type CommandResponse struct {
	Type           string            `json:"type"`
	Success        bool              `json:"success"`
	Message        string            `json:"message"`
	ErrorCode      string            `json:"error_code,omitempty"`
	Applied        bool              `json:"applied"`
	Finished       bool              `json:"finished"`
	Paid           string            `json:"paid,omitempty"`
	Seq            uint64            `json:"seq,omitempty"`
	Instructions   []InstructionView `json:"instructions,omitempty"`
	ProcessingTime int64             `json:"processing_time_ms"`
}

// BidderView is one row of the viewer listing.
type BidderView struct {
	Account          string `json:"account"`
	Rate             string `json:"rate"`
	Next             string `json:"next"`
	TimeToWinSeconds int64  `json:"time_to_win"`
	Balance          string `json:"balance"`
}

// BidderInfoView is the full record of one bidder.
type BidderInfoView struct {
	Account                  string `json:"account"`
	Rate                     string `json:"rate"`
	Next                     string `json:"next"`
	CumulativeNonWinningTime int64  `json:"cumulative_non_winning_time"`
	PendingSettleAmount      string `json:"pending_settle_amount"`
	StintAccrued             string `json:"stint_accrued"`
	Active                   bool   `json:"active"`
	Mirrored                 bool   `json:"mirrored"`
	HasExited                bool   `json:"has_exited"`
	Settled                  bool   `json:"settled"`
	Terminator               string `json:"terminator,omitempty"`
}

// QueryResponse answers bidder_info and list_bidders.
type QueryResponse struct {
	Type      string          `json:"type"`
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	AuctionID string          `json:"auction_id"`
	Winner    string          `json:"winner"`
	Finished  bool            `json:"finished"`
	Bidder    *BidderInfoView `json:"bidder,omitempty"`
	Bidders   []BidderView    `json:"bidders,omitempty"`
}

// WinnerView answers the winner endpoint.
type WinnerView struct {
	AuctionID           string `json:"auction_id"`
	Winner              string `json:"winner"`
	WinnerRate          string `json:"winner_rate"`
	Finished            bool   `json:"finished"`
	WinningConditionMet bool   `json:"winning_condition_met"`
	TimeToWinSeconds    int64  `json:"time_to_win"`
	OwnerBalance        string `json:"owner_balance"`
}

// CheckpointResponse carries a signed checkpoint and the key that verifies it.
type CheckpointResponse struct {
	Type           string               `json:"type"`
	Success        bool                 `json:"success"`
	Message        string               `json:"message,omitempty"`
	Checkpoint     *Checkpoint          `json:"checkpoint,omitempty"`
	CheckpointCOSE CheckpointCOSEBase64 `json:"checkpoint_cose_base64,omitempty"`
	PublicKey      string               `json:"public_key,omitempty"` // PEM format
	ProcessingTime int64                `json:"processing_time_ms"`
}

// FeedMessage is pushed to leaderboard subscribers after every committed command.
type FeedMessage struct {
	AuctionID string       `json:"auction_id"`
	Seq       uint64       `json:"seq"`
	Winner    string       `json:"winner"`
	Finished  bool         `json:"finished"`
	Bidders   []BidderView `json:"bidders"`
	Timestamp time.Time    `json:"timestamp"`
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc is the decoded NSM attestation optionally embedded in a checkpoint.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"`
	CABundle        []string  `json:"cabundle"`
	PublicKey       string    `json:"public_key"`
	Nonce           string    `json:"nonce"`
}

// CheckpointAttestationUserData is what the daemon asks the NSM to attest.
type CheckpointAttestationUserData struct {
	AuctionID   string `json:"auction_id"`
	Seq         uint64 `json:"seq"`
	JournalHash string `json:"journal_hash"`
	StateDigest string `json:"state_digest"`
	PublicKey   string `json:"public_key"` // PEM of the checkpoint signing key
}

// URLEncode encodes attestation for URLs
func (a *AttestationDoc) URLEncode() string {
	data, _ := json.Marshal(a)
	return url.QueryEscape(base64.StdEncoding.EncodeToString(data))
}
