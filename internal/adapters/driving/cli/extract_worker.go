package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern-cli/internal/mobi"
)

var workerFlags struct {
	input            string
	output           string
	maxTextBytes     int64
	maxFragmentBytes int64
	rlimitAS         uint64
	rlimitCPU        uint64
}

// extractWorkerCmd is the child half of MOBI extraction. The extractor
// re-execs this binary with this subcommand so a crash or runaway parse
// takes down a disposable process, not the CLI.
var extractWorkerCmd = &cobra.Command{
	Use:    mobi.WorkerCommand,
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return mobi.RunWorker(workerFlags.input, workerFlags.output, mobi.WorkerLimits{
			MaxTextBytes:      workerFlags.maxTextBytes,
			MaxFragmentBytes:  workerFlags.maxFragmentBytes,
			AddressSpaceBytes: workerFlags.rlimitAS,
			CPUSeconds:        workerFlags.rlimitCPU,
		}, os.Stdout)
	},
}

func init() {
	f := extractWorkerCmd.Flags()
	f.StringVar(&workerFlags.input, "input", "", "source container path")
	f.StringVar(&workerFlags.output, "output", "", "extracted text destination")
	f.Int64Var(&workerFlags.maxTextBytes, "max-text-bytes", 0, "output size cap")
	f.Int64Var(&workerFlags.maxFragmentBytes, "max-fragment-bytes", 0, "single record size cap")
	f.Uint64Var(&workerFlags.rlimitAS, "rlimit-as", 0, "address space limit in bytes")
	f.Uint64Var(&workerFlags.rlimitCPU, "rlimit-cpu", 0, "CPU time limit in seconds")
	_ = extractWorkerCmd.MarkFlagRequired("input")
	_ = extractWorkerCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(extractWorkerCmd)
}
