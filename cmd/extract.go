package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"imeiledger/internal/imei"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file...]",
	Short: "Print the valid IMEIs (or document numbers) found in text files",
	Long: `Read text files, or standard input when no file is given, and print every
valid 15-digit IMEI, one per line, sorted and deduplicated. With --documents,
print EFR/EAR document numbers instead, in first-seen order.`,
	Example: `  imeiledger extract notes.txt
  pbpaste | imeiledger extract --documents`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().Bool("documents", false, "Print document numbers instead of IMEIs")
}

func runExtract(cmd *cobra.Command, args []string) error {
	documents, _ := cmd.Flags().GetBool("documents")

	var text []byte
	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = data
	}
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		text = append(text, '\n')
		text = append(text, data...)
	}

	var found []string
	if documents {
		found = imei.DocumentNumbers(string(text))
	} else {
		found = imei.Extract(string(text))
	}
	for _, v := range found {
		fmt.Println(v)
	}
	return nil
}
