package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/loykin/emuctl/pkg/client"
)

func newClient(f APIFlags) (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:  f.APIUrl,
		Timeout:  f.APITimeout,
		CACert:   f.CACert,
		Insecure: f.Insecure,
	})
}

func runSequence(ctx context.Context, op, id string, f APIFlags, out io.Writer) error {
	c, err := newClient(f)
	if err != nil {
		return err
	}
	var resp *client.SequenceResponse
	if op == "stop" {
		resp, err = c.Stop(ctx, id)
	} else {
		resp, err = c.Start(ctx, id)
	}
	if err != nil {
		return err
	}
	if f.JSON {
		return printJSON(out, resp)
	}
	printOutcomes(out, resp.Results)
	_, _ = fmt.Fprintf(out, "%s: %s\n", resp.Message, summary(resp.Results))
	return nil
}

func runStatus(ctx context.Context, id string, f APIFlags, out io.Writer) error {
	c, err := newClient(f)
	if err != nil {
		return err
	}
	st, err := c.Status(ctx, id)
	if err != nil {
		return err
	}
	if f.JSON {
		return printJSON(out, st)
	}
	printStatus(out, st)
	return nil
}

func runInfo(ctx context.Context, f APIFlags, out io.Writer) error {
	c, err := newClient(f)
	if err != nil {
		return err
	}
	info, err := c.Info(ctx)
	if err != nil {
		return err
	}
	if f.JSON {
		return printJSON(out, info)
	}
	_, _ = fmt.Fprintf(out, "%s %s (port %d)\n\n", info.Service, info.Version, info.Port)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tENABLED\tEMULATORS\tPATH")
	for _, s := range info.Servers {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\n", s.ID, s.Name, s.Enabled, s.Emulators, s.Path)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintln(out)
	keys := make([]string, 0, len(info.Endpoints))
	for k := range info.Endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(out, "  %s\n", info.Endpoints[k])
	}
	return nil
}

func printOutcomes(out io.Writer, outs []client.Outcome) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SERVER\tEMULATOR\tSTATUS\tDETAIL")
	for _, o := range outs {
		detail := o.Message
		if o.Path != "" {
			detail = o.Path
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Server, o.Emulator, o.Status, detail)
	}
	_ = tw.Flush()
}

func printStatus(out io.Writer, st *client.StatusResponse) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SERVER\tEMULATOR\tRUNNING\tPID\tMEMORY(MB)\tSTARTED\tERROR")
	row := func(server string, e client.EmulatorStatus) {
		pid, mem, started := "-", "-", "-"
		if e.PID != nil {
			pid = fmt.Sprint(*e.PID)
		}
		if e.MemoryMB != nil {
			mem = fmt.Sprintf("%.1f", *e.MemoryMB)
		}
		if e.StartTime != nil {
			started = e.StartTime.Local().Format("2006-01-02 15:04:05")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\t%s\n", server, e.Name, e.IsRunning, pid, mem, started, e.Error)
	}
	for _, s := range st.Servers {
		name := s.ID
		if !s.Enabled {
			name += " (disabled)"
		}
		for _, e := range s.Emulators {
			row(name, e)
		}
	}
	for _, e := range st.Emulators {
		row("-", e)
	}
	_ = tw.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// summary renders outcome counts like "started=2 file_not_found=1".
func summary(outs []client.Outcome) string {
	counts := map[string]int{}
	var order []string
	for _, o := range outs {
		if counts[o.Status] == 0 {
			order = append(order, o.Status)
		}
		counts[o.Status]++
	}
	parts := make([]string, 0, len(order))
	for _, s := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", s, counts[s]))
	}
	return strings.Join(parts, " ")
}
