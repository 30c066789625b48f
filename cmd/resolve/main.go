// Command resolve walks the DNS delegation chain from the root servers and
// prints the answers for each domain.
//
// Usage:
//
//	resolve [domain...] [--type A] [--protocol udp] [--output text|json|yaml]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tiny-resolver/internal/dns"
	"tiny-resolver/internal/resolver"
	"tiny-resolver/internal/transport"
	"tiny-resolver/pkg/logger"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var defaultDomains = []string{"blog.wtcx.dev", "www.google.com", "www.facebook.com"}

type options struct {
	recordType  string
	protocol    string
	timeout     time.Duration
	followCNAME bool
	output      string
	verbose     bool
}

type querier interface {
	Query(ctx context.Context, name string, t dns.RecordType) (*resolver.Response, error)
}

type buildFunc func(opts options, log *slog.Logger) (querier, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(buildResolver).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(build buildFunc) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "resolve [domain...]",
		Short: "Resolve domains iteratively from the root servers",
		Long: `Resolves each domain by walking referrals from a random root server,
without relying on the system resolver. With no arguments a few well-known
domains are resolved.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts, build)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.recordType, "type", "t", "A", "record type to query (A, AAAA, NS, CNAME, MX, TXT, ...)")
	f.StringVarP(&opts.protocol, "protocol", "p", string(transport.UDP), "transport: udp, tcp or dot")
	f.DurationVar(&opts.timeout, "timeout", 3*time.Second, "per-exchange timeout")
	f.BoolVar(&opts.followCNAME, "follow-cname", false, "chase CNAME answers to the requested type")
	f.StringVarP(&opts.output, "output", "o", "text", "output format: text, json or yaml")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log every hop to stderr")
	return cmd
}

func buildResolver(opts options, log *slog.Logger) (querier, error) {
	p, err := transport.ParseProtocol(opts.protocol)
	if err != nil {
		return nil, err
	}
	r, err := resolver.NewForProtocol(p, transport.Options{Timeout: opts.timeout})
	if err != nil {
		return nil, err
	}
	r.FollowCNAME = opts.followCNAME
	r.Logger = log
	return r, nil
}

type answer struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	TTL  uint32 `json:"ttl" yaml:"ttl"`
	Data string `json:"data" yaml:"data"`
}

type result struct {
	Domain  string   `json:"domain" yaml:"domain"`
	Type    string   `json:"type" yaml:"type"`
	Answers []answer `json:"answers" yaml:"answers"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func run(cmd *cobra.Command, domains []string, opts options, build buildFunc) error {
	t, err := dns.ParseRecordType(opts.recordType)
	if err != nil {
		return err
	}
	switch opts.output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	if len(domains) == 0 {
		domains = defaultDomains
	}

	log := logger.NewText(cmd.ErrOrStderr(), opts.verbose)
	q, err := build(opts, log)
	if err != nil {
		return err
	}

	results := make([]result, len(domains))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, domain := range domains {
		g.Go(func() error {
			res := result{Domain: domain, Type: t.String(), Answers: []answer{}}
			resp, err := q.Query(ctx, domain, t)
			if err != nil {
				res.Error = err.Error()
			} else {
				for _, rr := range resp.Answers() {
					res.Answers = append(res.Answers, answer{Name: rr.Name, Type: rr.Type.String(), TTL: rr.TTL, Data: rr.Data.String()})
				}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	if err := render(cmd.OutOrStdout(), opts.output, results); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
			if opts.output == "text" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", r.Domain, r.Error)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d lookups failed", failed, len(results))
	}
	return nil
}

func render(w io.Writer, format string, results []result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return err
		}
		return enc.Close()
	default:
		for _, r := range results {
			for _, a := range r.Answers {
				if _, err := fmt.Fprintf(w, "%s -> %s\n", r.Domain, a.Data); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
