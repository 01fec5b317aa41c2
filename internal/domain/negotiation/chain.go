package negotiation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ComputeEventHash hashes the event content. Chain fields are excluded.
func ComputeEventHash(e *OfferEvent) (string, error) {
	c := *e
	c.PrevHash = ""
	c.EventHash = ""
	c.ChainHash = ""
	c.Signature = ""
	c.Timestamp = c.Timestamp.UTC()

	data, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("failed to serialize event for hashing: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ComputeChainHash computes hash(eventHash + prevHash)
func ComputeChainHash(eventHash, prevHash string) string {
	sum := blake2b.Sum256([]byte(eventHash + prevHash))
	return hex.EncodeToString(sum[:])
}

// Sign creates an HMAC-SHA256 signature over a chain hash.
func Sign(chainHash string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(chainHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature produced by Sign.
func VerifySignature(chainHash, signature string, key []byte) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(chainHash))
	return hmac.Equal(got, mac.Sum(nil))
}

// Seal links e to prevHash and fills its hashes. A nil key leaves it unsigned.
func (e *OfferEvent) Seal(prevHash string, key []byte) error {
	e.PrevHash = prevHash
	h, err := ComputeEventHash(e)
	if err != nil {
		return err
	}
	e.EventHash = h
	e.ChainHash = ComputeChainHash(h, prevHash)
	e.Signature = ""
	if len(key) > 0 {
		e.Signature = Sign(e.ChainHash, key)
	}
	return nil
}

// ChainBreak is one inconsistency found while verifying a ledger.
type ChainBreak struct {
	Seq      int64  `json:"seq"`
	Reason   string `json:"reason"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// ChainReport summarizes a ledger verification.
type ChainReport struct {
	Valid  bool         `json:"valid"`
	Length int          `json:"length"`
	Head   string       `json:"head,omitempty"`
	Signed bool         `json:"signed"`
	Breaks []ChainBreak `json:"breaks,omitempty"`
}

// VerifyChain re-derives every hash of an ordered ledger. Signatures are
// checked only when key is set.
func VerifyChain(events []*OfferEvent, key []byte) ChainReport {
	report := ChainReport{Length: len(events), Signed: len(key) > 0}
	prev := ""
	for i, e := range events {
		if want := int64(i + 1); e.Seq != want {
			report.Breaks = append(report.Breaks, ChainBreak{
				Seq: e.Seq, Reason: "sequence gap",
				Expected: fmt.Sprint(want), Actual: fmt.Sprint(e.Seq),
			})
		}
		if e.PrevHash != prev {
			report.Breaks = append(report.Breaks, ChainBreak{
				Seq: e.Seq, Reason: "prev hash mismatch", Expected: prev, Actual: e.PrevHash,
			})
		}
		h, err := ComputeEventHash(e)
		if err != nil || h != e.EventHash {
			report.Breaks = append(report.Breaks, ChainBreak{
				Seq: e.Seq, Reason: "event hash mismatch", Expected: h, Actual: e.EventHash,
			})
		}
		if ch := ComputeChainHash(e.EventHash, e.PrevHash); ch != e.ChainHash {
			report.Breaks = append(report.Breaks, ChainBreak{
				Seq: e.Seq, Reason: "chain hash mismatch", Expected: ch, Actual: e.ChainHash,
			})
		}
		if report.Signed && !VerifySignature(e.ChainHash, e.Signature, key) {
			report.Breaks = append(report.Breaks, ChainBreak{Seq: e.Seq, Reason: "signature invalid"})
		}
		prev = e.ChainHash
	}
	report.Head = prev
	report.Valid = len(report.Breaks) == 0
	return report
}
