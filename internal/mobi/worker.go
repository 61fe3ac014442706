package mobi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

// WorkerLimits are the self-applied budgets of the extraction child.
type WorkerLimits struct {
	// MaxTextBytes hard-caps (truncates) the extracted text.
	MaxTextBytes int64
	// MaxFragmentBytes skips any single record that decompresses beyond
	// this, as defence-in-depth past the header pre-check.
	MaxFragmentBytes int64
	// AddressSpaceBytes and CPUSeconds are applied via setrlimit before
	// any parsing work. Zero leaves the limit untouched.
	AddressSpaceBytes uint64
	CPUSeconds        uint64
}

// WorkerResult is the single JSON line the child reports on stdout.
type WorkerResult struct {
	Chars     int64 `json:"chars"`
	Bytes     int64 `json:"bytes"`
	Truncated bool  `json:"truncated"`
	Skipped   int   `json:"skippedFragments"`
}

// RunWorker is the child-process entrypoint: apply OS resource limits,
// parse inputPath, write UTF-8 text to outputPath, report the result on
// stdout. It runs in a disposable process precisely because the parse
// may crash or hang on hostile input.
func RunWorker(inputPath, outputPath string, limits WorkerLimits, stdout io.Writer) error {
	if err := applyResourceLimits(limits.AddressSpaceBytes, limits.CPUSeconds); err != nil {
		return fmt.Errorf("apply resource limits: %w", err)
	}

	header, err := ParseHeaderFile(inputPath)
	if err != nil {
		return err
	}
	if header.Encryption != 0 {
		return fmt.Errorf("%w: encrypted container", domain.ErrUnsupportedFormat)
	}
	if header.Compression == CompressionHuff {
		return fmt.Errorf("%w: HUFF/CDIC compression", domain.ErrUnsupportedFormat)
	}
	if header.Compression != CompressionNone && header.Compression != CompressionPalmDoc {
		return fmt.Errorf("%w: unknown compression %d", domain.ErrUnsupportedFormat, header.Compression)
	}

	src, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", inputPath, err)
	}
	defer src.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputPath, err)
	}
	defer out.Close()
	w := bufio.NewWriterSize(out, 64<<10)

	result, err := extractText(src, header, limits, w)
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	return json.NewEncoder(stdout).Encode(result)
}

// extractText walks the text records, decompressing and re-encoding to
// UTF-8 within the configured caps.
func extractText(src io.ReaderAt, header *Header, limits WorkerLimits, w *bufio.Writer) (*WorkerResult, error) {
	cp1252 := header.TextEncoding != EncodingUTF8 // PalmDoc default code page
	decoder := charmap.Windows1252.NewDecoder()

	result := &WorkerResult{}
	var rawTotal int64

	for i := 1; i <= int(header.RecordCount); i++ {
		record, err := header.record(src, i)
		if err != nil {
			return nil, err
		}
		if header.ExtraDataFlags != 0 {
			record = trimTrailingEntries(record, header.ExtraDataFlags)
		}

		var text []byte
		if header.Compression == CompressionPalmDoc {
			text, err = decompressPalmDoc(record, int(limits.MaxFragmentBytes)+1)
			if err != nil {
				return nil, err
			}
		} else {
			text = record
		}

		if limits.MaxFragmentBytes > 0 && int64(len(text)) > limits.MaxFragmentBytes {
			result.Skipped++
			continue
		}

		// The declared text length bounds the raw stream.
		if remaining := int64(header.TextLength) - rawTotal; remaining <= 0 {
			break
		} else if int64(len(text)) > remaining {
			text = text[:remaining]
		}
		rawTotal += int64(len(text))

		if cp1252 {
			text, err = decoder.Bytes(text)
			if err != nil {
				return nil, fmt.Errorf("decode cp1252: %w", err)
			}
		}

		if limits.MaxTextBytes > 0 && result.Bytes+int64(len(text)) > limits.MaxTextBytes {
			text = text[:limits.MaxTextBytes-result.Bytes]
			result.Truncated = true
		}
		if _, err := w.Write(text); err != nil {
			return nil, fmt.Errorf("write output: %w", err)
		}
		result.Bytes += int64(len(text))
		result.Chars += int64(utf8.RuneCount(text))

		if result.Truncated {
			break
		}
	}
	return result, nil
}
