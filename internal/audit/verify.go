package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// maxLineBytes bounds a single audit record line.
const maxLineBytes = 1 << 20

// VerifyResult is the outcome of a chain verification. Failures are
// reported structurally; verification never aborts the caller.
type VerifyResult struct {
	Valid          bool   `json:"valid"`
	Records        int    `json:"records"`
	ViolationIndex int    `json:"violationIndex,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Verify streams an audit log and validates the hash chain. A missing log
// is trivially valid. Verification reads up to the file size captured at
// open, so it tolerates a log that grows during the scan.
//
// For each record: the prevHash must equal the running tail hash, and the
// record's hash must recompute from its non-integrity fields plus its own
// prevHash. A line that fails to parse is a format error at its index; the
// parse error message is reported as data, never evaluated.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return VerifyResult{Valid: true}
		}
		return VerifyResult{Reason: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return VerifyResult{Reason: fmt.Sprintf("stat: %v", err)}
	}

	scanner := bufio.NewScanner(io.LimitReader(f, info.Size()))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lastHash := GenesisHash
	index := 0

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return VerifyResult{
				Records:        index,
				ViolationIndex: index,
				Reason:         fmt.Sprintf("format error at record %d: %v", index, err),
			}
		}
		if rec.Integrity == nil {
			return VerifyResult{
				Records:        index,
				ViolationIndex: index,
				Reason:         fmt.Sprintf("format error at record %d: missing integrity field", index),
			}
		}

		if rec.Integrity.PrevHash != lastHash {
			return VerifyResult{
				Records:        index,
				ViolationIndex: index,
				Reason: fmt.Sprintf("chain broken at record %d: prevHash mismatch, expected %s, found %s",
					index, lastHash, rec.Integrity.PrevHash),
			}
		}

		canonical, err := canonicalBytes(rec)
		if err != nil {
			return VerifyResult{
				Records:        index,
				ViolationIndex: index,
				Reason:         fmt.Sprintf("format error at record %d: %v", index, err),
			}
		}
		computed := chainHash(canonical, rec.Integrity.PrevHash)
		if computed != rec.Integrity.Hash {
			return VerifyResult{
				Records:        index,
				ViolationIndex: index,
				Reason: fmt.Sprintf("integrity violation at record %d: hash mismatch, computed %s, found %s",
					index, computed, rec.Integrity.Hash),
			}
		}

		lastHash = rec.Integrity.Hash
		index++
	}

	if err := scanner.Err(); err != nil {
		return VerifyResult{Records: index, ViolationIndex: index, Reason: fmt.Sprintf("scan: %v", err)}
	}

	return VerifyResult{Valid: true, Records: index}
}
