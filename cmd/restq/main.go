// Command restq is an example application for the restq library. It issues
// declarative REST calls against a JSON API and can sync collection
// responses into a local repository keyed by a unique attribute.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/creachadair/mds/mapset"
	"github.com/redis/go-redis/v9"

	"github.com/restq/restq"
	"github.com/restq/restq/entity"
	"github.com/restq/restq/middleware"
)

type CLI struct {
	BaseURL string `help:"Base URL of the target API." required:"" name:"base-url"`
	Timeout int    `help:"Per-request timeout in seconds." default:"30"`
	Verbose bool   `help:"Log every request." short:"v"`

	Version VersionCmd `cmd:"" help:"Print version information."`
	Get     GetCmd     `cmd:"" help:"Issue one read call and print the classified response."`
	Sync    SyncCmd    `cmd:"" help:"Fetch a collection and sync it into a repository."`
}

type VersionCmd struct{}

func (c *VersionCmd) Run(*CLI) error {
	fmt.Println(Version())
	return nil
}

type GetCmd struct {
	Path    string `arg:"" help:"Request path, e.g. /users."`
	RootKey string `help:"Root key to extract before classification." name:"root-key"`
}

func (c *GetCmd) Run(cli *CLI) error {
	svc, err := newService(cli)
	if err != nil {
		return err
	}

	done := make(chan restq.Result, 1)
	call := restq.NewCall(restq.GET, c.Path).WithRootKey(c.RootKey)
	if _, err := svc.PerformJSON(context.Background(), call, true, func(res restq.Result) {
		done <- res
	}); err != nil {
		return err
	}

	res := <-done
	switch res.Kind {
	case restq.ResultFailure:
		return res.Err
	case restq.ResultAck:
		fmt.Println("ok (empty body)")
		return nil
	default:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Raw)
	}
}

type SyncCmd struct {
	Path     string `arg:"" help:"Collection path, e.g. /users."`
	KeyField string `help:"Unique key field." default:"uniqueValue" name:"key-field"`
	Fields   string `help:"Comma-separated mapped fields." default:"uniqueValue,username"`
	RootKey  string `help:"Collection root key." default:"results" name:"root-key"`

	Redis       string `help:"Redis address; empty uses an in-memory repository."`
	RedisPrefix string `help:"Redis key prefix." default:"restq:" name:"redis-prefix"`
}

func (c *SyncCmd) Run(cli *CLI) error {
	svc, err := newService(cli)
	if err != nil {
		return err
	}

	repo, err := c.newRepository()
	if err != nil {
		return err
	}
	mapper := entity.NewMapper(repo, c.KeyField, splitFields(c.Fields)...).WithRootKey(c.RootKey)

	ctx := context.Background()
	var synced int
	batchDone := make(chan error, 1)

	queue := restq.NewQueue(svc, func(failed mapset.Set[*restq.Handle], errs []error) {
		if len(errs) > 0 {
			batchDone <- fmt.Errorf("%d of the batch failed, first: %w", failed.Len(), errs[0])
			return
		}
		batchDone <- nil
	})

	call := restq.NewCall(restq.GET, c.Path).WithRootKey(mapper.RootKey())
	h := queue.PerformJSON(call, true, func(res restq.Result) {
		if res.Failed() {
			return
		}
		recs, err := mapper.ApplyNode(ctx, res.Node())
		if err != nil {
			slog.Error("mapping failed", slog.Any("error", err))
			return
		}
		synced = len(recs)
	})
	if h == nil {
		return fmt.Errorf("could not create request for %s", call)
	}

	if err := <-batchDone; err != nil {
		return err
	}
	queue.Wait()

	fmt.Printf("synced %d records\n", synced)
	return nil
}

func (c *SyncCmd) newRepository() (entity.Repository, error) {
	if c.Redis == "" {
		return entity.NewMemoryRepository(), nil
	}
	repo := entity.NewRedisRepository(redis.NewClient(&redis.Options{Addr: c.Redis}), c.RedisPrefix)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := repo.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis at %s: %w", c.Redis, err)
	}
	return repo, nil
}

func newService(cli *CLI) (*restq.Service, error) {
	var client *http.Client
	if cli.Verbose {
		client = &http.Client{
			Timeout:   time.Duration(cli.Timeout) * time.Second,
			Transport: middleware.Chain(nil, middleware.Logging(slog.Default())),
		}
	}
	return restq.NewService(restq.Config{
		BaseURL:    cli.BaseURL,
		Timeout:    time.Duration(cli.Timeout) * time.Second,
		HTTPClient: client,
	})
}

func splitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("restq"),
		kong.Description("Declarative REST calls with batched dispatch and entity syncing."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "restq: %v\n", err)
		os.Exit(1)
	}
}
