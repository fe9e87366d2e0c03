// Package metadata stamps rendered digests with a verifiable footer block.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"freshctx/pkg/utils"
)

const (
	// TagStart is the start of the metadata block.
	TagStart = "<!-- METADATA_START"
	// TagEnd is the end of the metadata block.
	TagEnd = "METADATA_END -->"
)

// Metadata verification errors.
var (
	ErrNoMetadataBlock = errors.New("no metadata block found")
	ErrNoHashFound     = errors.New("no hash found in metadata")
	ErrHashMismatch    = errors.New("hash mismatch")
)

// Metadata describes the run a digest was rendered from.
type Metadata struct {
	GeneratedAt time.Time
	RunID       string
	Query       string
	Records     int
	Hash        string
}

// metadataRegex matches the entire metadata block including tags.
var metadataRegex = regexp.MustCompile(`(?s)<!--\s*METADATA_START\s*\n(.*?)\n\s*METADATA_END\s*-->`)

// Extract removes the metadata block from content and returns both the
// metadata and the cleaned content. The cleaned content is what gets hashed.
func Extract(content string) (*Metadata, string) {
	match := metadataRegex.FindStringSubmatch(content)
	cleanContent := metadataRegex.ReplaceAllString(content, "")
	cleanContent = strings.TrimRight(cleanContent, "\n")

	if len(match) < 2 {
		return nil, cleanContent
	}

	meta := &Metadata{}

	for line := range strings.SplitSeq(match[1], "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}

		val = strings.TrimSpace(val)

		switch strings.TrimSpace(key) {
		case "RUN_ID":
			meta.RunID = val
		case "QUERY":
			meta.Query = val
		case "RECORDS":
			meta.Records, _ = strconv.Atoi(val)
		case "GENERATED_AT":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				meta.GeneratedAt = t
			}
		case "HASH":
			meta.Hash = val
		}
	}

	return meta, cleanContent
}

// CalculateHash computes the SHA-256 hash of the content, excluding any metadata block.
func CalculateHash(content string) string {
	_, clean := Extract(content)
	hash := sha256.Sum256([]byte(clean))

	return hex.EncodeToString(hash[:])
}

// Stamp replaces any existing block with one describing meta and a fresh hash.
// A zero GeneratedAt is set to the current time.
func Stamp(content string, meta Metadata) string {
	_, clean := Extract(content)

	generated := meta.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	block := fmt.Sprintf("\n\n%s\nRUN_ID: %s\nQUERY: %s\nRECORDS: %d\nGENERATED_AT: %s\nHASH: %s\n%s",
		TagStart,
		meta.RunID,
		utils.NormalizeWhitespace(meta.Query),
		meta.Records,
		generated.UTC().Format(time.RFC3339),
		CalculateHash(clean),
		TagEnd)

	return clean + block
}

// Verify checks that content matches the hash in its metadata block.
func Verify(content string) (*Metadata, error) {
	meta, clean := Extract(content)
	if meta == nil {
		return nil, ErrNoMetadataBlock
	}

	if meta.Hash == "" {
		return meta, ErrNoHashFound
	}

	calculated := CalculateHash(clean)
	if calculated != meta.Hash {
		return meta, fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, meta.Hash, calculated)
	}

	return meta, nil
}
