package main

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flashdb/flashkv/internal/protocol"
)

func newCallCmd() *cobra.Command {
	var addr, password string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call COMMAND [ARG...]",
		Short: "Send one command to a FlashKV server and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := net.DialTimeout("tcp", addr, timeout)
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(timeout))

			reader := protocol.NewReader(conn)
			writer := protocol.NewWriter(conn)

			if password != "" {
				if err := writer.WriteCommand("AUTH", password); err != nil {
					return err
				}
				v, err := reader.ReadValue()
				if err != nil {
					return err
				}
				if v.Type == protocol.TypeError {
					return fmt.Errorf("auth: %s", v.Str)
				}
			}

			if err := writer.WriteCommand(args...); err != nil {
				return err
			}
			v, err := reader.ReadValue()
			if err != nil {
				return err
			}
			printValue(cmd.OutOrStdout(), v, "")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:6379", "Server address")
	cmd.Flags().StringVar(&password, "password", "", "Password sent with AUTH first")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Connect and reply timeout")
	return cmd
}

// printValue writes v the way redis-cli formats replies.
func printValue(w io.Writer, v protocol.Value, indent string) {
	switch v.Type {
	case protocol.TypeError:
		fmt.Fprintf(w, "(error) %s\n", v.Str)
	case protocol.TypeInteger:
		fmt.Fprintf(w, "(integer) %d\n", v.Num)
	case protocol.TypeSimpleString:
		fmt.Fprintln(w, v.Str)
	case protocol.TypeBulkString:
		if v.Null {
			fmt.Fprintln(w, "(nil)")
			return
		}
		fmt.Fprintf(w, "%q\n", v.Bulk)
	case protocol.TypeArray:
		if v.Null {
			fmt.Fprintln(w, "(nil)")
			return
		}
		if len(v.Array) == 0 {
			fmt.Fprintln(w, "(empty array)")
			return
		}
		width := len(fmt.Sprint(len(v.Array)))
		for i, item := range v.Array {
			prefix := fmt.Sprintf("%*d) ", width, i+1)
			if i > 0 {
				fmt.Fprint(w, indent)
			}
			fmt.Fprint(w, prefix)
			printValue(w, item, indent+strings.Repeat(" ", len(prefix)))
		}
	}
}
