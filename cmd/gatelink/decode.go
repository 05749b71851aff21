package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gatelink-dev/gatelink/pkg/capture"
	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

func decodeCmd() *cobra.Command {
	var hexFrame string

	cmd := &cobra.Command{
		Use:   "decode [capture-file]",
		Short: "Pretty-print captured or hex-encoded frames",
		Long: `Decodes frames into their value trees. With a capture file argument
every record is printed with its direction and timestamp; with --hex a
single raw frame is decoded from a hex string.

Examples:
  gatelink decode captures/hub-20260829-101500.glcap
  gatelink decode --hex 474c30300000000000...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if hexFrame != "" {
				return decodeHexFrame(hexFrame)
			}
			if len(args) != 1 {
				return fmt.Errorf("expected a capture file argument or --hex")
			}
			return decodeCaptureFile(args[0])
		},
	}

	cmd.Flags().StringVar(&hexFrame, "hex", "", "decode one hex-encoded frame instead of a file")
	return cmd
}

func decodeHexFrame(s string) error {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\t' {
			return -1
		}
		return r
	}, s)
	frame, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("bad hex input: %w", err)
	}

	consumed, values, err := protocol.DecodeFrame(frame)
	if err != nil {
		return err
	}
	if consumed != len(frame) {
		warn("%d trailing bytes after the frame", len(frame)-consumed)
	}
	for _, v := range values {
		fmt.Println(protocol.Normalize(v).String())
	}
	return nil
}

func decodeCaptureFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := capture.ReadAll(f)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		warn("Capture is empty")
		return nil
	}

	for _, rec := range records {
		dir := "<-"
		if rec.Outbound {
			dir = "->"
		}
		fmt.Printf("#%d %s %s %d bytes\n",
			rec.Seq, rec.Time.Format("15:04:05.000"), dir, len(rec.Frame))
		values, err := rec.Decode()
		if err != nil {
			errorMsg("record %d: %s", rec.Seq, err)
			continue
		}
		for _, v := range values {
			fmt.Printf("  %s\n", v.String())
		}
	}
	info("%d records", len(records))
	return nil
}
