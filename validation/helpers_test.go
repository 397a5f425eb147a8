package validation

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/streamauction/auctionapi"
	"github.com/cloudx-io/streamauction/auctionapi/parsing"
	"github.com/cloudx-io/streamauction/core"
	"github.com/cloudx-io/streamauction/journal"
)

var (
	testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	bidderA   = common.HexToAddress("0x000000000000000000000000000000000000000a")
	bidderB   = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

const testAuctionID = "5f0c1b9e-3a52-4c86-9a57-1b7f1e2d8c44"

// auctionRun is a journaled auction and the key that signs its checkpoints.
type auctionRun struct {
	auction *core.Auction
	clock   *core.ManualClock
	journal *journal.Journal
	key     *ecdsa.PrivateKey
	keyPEM  string
}

func newAuctionRun(t *testing.T) *auctionRun {
	t.Helper()
	ctx := context.Background()
	cfg := core.Config{
		Host:         common.HexToAddress("0x00000000000000000000000000000000000000f1"),
		Agreement:    common.HexToAddress("0x00000000000000000000000000000000000000f2"),
		Asset:        common.HexToAddress("0x00000000000000000000000000000000000000f3"),
		Owner:        ownerAddr,
		HoldDuration: 100 * time.Second,
		StepPercent:  10,
	}

	j, err := journal.Open(ctx, journal.NewMemoryStore())
	assert.Nil(t, err)
	g := journal.NewGenesis(testAuctionID, cfg, testStart)
	_, err = j.Append(ctx, journal.Command{Kind: journal.KindCreate, At: testStart.Unix(), Genesis: &g})
	assert.Nil(t, err)

	clock := core.NewManualClock(testStart)
	a, err := core.New(cfg, clock)
	assert.Nil(t, err)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	assert.Nil(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	assert.Nil(t, err)
	keyPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	return &auctionRun{auction: a, clock: clock, journal: j, key: key, keyPEM: keyPEM}
}

func (r *auctionRun) apply(t *testing.T, cmd journal.Command) {
	t.Helper()
	_, err := journal.Apply(r.auction, r.clock, cmd)
	assert.Nil(t, err)
	_, err = r.journal.Append(context.Background(), cmd)
	assert.Nil(t, err)
}

func (r *auctionRun) admit(t *testing.T, key common.Address, rate int64, at time.Time) {
	t.Helper()
	r.apply(t, journal.NewEventCommand(core.Event{Kind: core.EventAdmitted, Account: key, Rate: decimal.NewFromInt(rate)}, at))
}

func (r *auctionRun) entries(t *testing.T) []journal.Entry {
	t.Helper()
	entries, err := r.journal.Entries(context.Background())
	assert.Nil(t, err)
	return entries
}

func (r *auctionRun) checkpoint() *auctionapi.Checkpoint {
	seq, hash := r.journal.Head()
	return auctionapi.NewCheckpoint(testAuctionID, seq, hash, r.auction.Snapshot())
}

func signWith(t *testing.T, cp *auctionapi.Checkpoint, key *ecdsa.PrivateKey) auctionapi.CheckpointCOSE {
	t.Helper()
	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	assert.Nil(t, err)
	raw, err := cp.Sign(rand.Reader, signer)
	assert.Nil(t, err)
	return raw
}

// fakeNitro issues NSM-shaped attestation documents from a throwaway P-384 PKI.
type fakeNitro struct {
	rootPEM  string
	rootDER  []byte
	leafDER  []byte
	leafKey  *ecdsa.PrivateKey
	pcr0     []byte
	attestAt time.Time
}

func newFakeNitro(t *testing.T) *fakeNitro {
	t.Helper()
	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.Nil(t, err)
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test.nitro-enclaves"},
		NotBefore:             testStart.Add(-24 * time.Hour),
		NotAfter:              testStart.Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	assert.Nil(t, err)
	root, err := x509.ParseCertificate(rootDER)
	assert.Nil(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.Nil(t, err)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "i-test-enc"},
		NotBefore:    testStart.Add(-time.Hour),
		NotAfter:     testStart.Add(3 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, root, &leafKey.PublicKey, rootKey)
	assert.Nil(t, err)

	return &fakeNitro{
		rootPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rootDER})),
		rootDER:  rootDER,
		leafDER:  leafDER,
		leafKey:  leafKey,
		pcr0:     []byte{0x3b, 0x4c, 0xef},
		attestAt: testStart,
	}
}

func (n *fakeNitro) knownPCRs() []PCRSet {
	return []PCRSet{{PCR0: "3b4cef", PCR1: "01", PCR2: "02", CommitHash: "abc123"}}
}

// attest returns an untagged COSE_Sign1 document carrying userData, signed ES384.
func (n *fakeNitro) attest(t *testing.T, userData []byte) []byte {
	t.Helper()
	doc := parsing.NitroAttestationDocument{
		ModuleID:    "i-test-enc",
		Digest:      "SHA384",
		Timestamp:   uint64(n.attestAt.UnixMilli()),
		PCRs:        map[uint64][]byte{0: n.pcr0, 1: {0x01}, 2: {0x02}},
		Certificate: n.leafDER,
		CABundle:    [][]byte{n.rootDER},
		UserData:    userData,
	}
	payload, err := cbor.Marshal(doc)
	assert.Nil(t, err)

	protected, err := cbor.Marshal(map[int]int{1: -35})
	assert.Nil(t, err)
	sigStructure, err := cbor.Marshal([]any{"Signature1", protected, []byte{}, payload})
	assert.Nil(t, err)

	signer, err := cose.NewSigner(cose.AlgorithmES384, n.leafKey)
	assert.Nil(t, err)
	signature, err := signer.Sign(rand.Reader, sigStructure)
	assert.Nil(t, err)

	raw, err := cbor.Marshal([]any{protected, map[int]any{}, payload, signature})
	assert.Nil(t, err)
	return raw
}

func attestationUserData(t *testing.T, cp *auctionapi.Checkpoint, keyPEM string) []byte {
	t.Helper()
	data, err := json.Marshal(auctionapi.CheckpointAttestationUserData{
		AuctionID:   cp.AuctionID,
		Seq:         cp.Seq,
		JournalHash: cp.JournalHash,
		StateDigest: cp.StateDigest,
		PublicKey:   keyPEM,
	})
	assert.Nil(t, err)
	return data
}
