package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	mastergrpc "stratadb/internal/master/grpc"
	api "stratadb/pkg/api"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "table":
		tableCmd(os.Args[2:])
	case "tablet":
		tabletCmd(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `StrataDB CLI

Usage:
  stratadb-cli table create    --addr <host:port> --name <t> --columns <c1:INT64,c2:STRING> --keys <n> [--replicas <n>] [--tablets <n>]
  stratadb-cli table done      --addr <host:port> --name <t>
  stratadb-cli table schema    --addr <host:port> --name <t>
  stratadb-cli tablet locate   --addr <host:port> --id <tablet-id>
`)
}

func tableCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "create":
		tableCreate(args[1:])
	case "done":
		tableDone(args[1:])
	case "schema":
		tableSchema(args[1:])
	default:
		usage()
		os.Exit(1)
	}
}

func tabletCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "locate":
		tabletLocate(args[1:])
	default:
		usage()
		os.Exit(1)
	}
}

func dial(ctx context.Context, addr string) *mastergrpc.Client {
	client, err := mastergrpc.NewClient(ctx, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to %s: %v\n", addr, err)
		os.Exit(1)
	}
	return client
}

func tableCreate(args []string) {
	fs := flag.NewFlagSet("table create", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:28010", "master gRPC address")
	name := fs.String("name", "", "table name")
	columns := fs.String("columns", "", "comma-separated name:type column list")
	keys := fs.Int("keys", 1, "number of leading key columns")
	replicas := fs.Int("replicas", 3, "replicas per tablet")
	tablets := fs.Int("tablets", 1, "number of tablets")
	_ = fs.Parse(args)
	if *name == "" || *columns == "" {
		fmt.Fprintln(os.Stderr, "--name and --columns are required")
		os.Exit(1)
	}

	sch := &api.TableSchema{KeyColumns: *keys}
	for _, col := range strings.Split(*columns, ",") {
		parts := strings.SplitN(col, ":", 2)
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "bad column %q, want name:type\n", col)
			os.Exit(1)
		}
		sch.Columns = append(sch.Columns, &api.ColumnSchema{Name: parts[0], Type: strings.ToUpper(parts[1])})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := dial(ctx, *addr)
	defer client.Close()

	resp, err := client.CreateTable(ctx, &api.CreateTableRequest{
		Name:         *name,
		Schema:       sch,
		ReplicaCount: *replicas,
		TabletCount:  *tablets,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create table error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("table=%s id=%s\n", *name, resp.TableID)
}

func tableDone(args []string) {
	fs := flag.NewFlagSet("table done", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:28010", "master gRPC address")
	name := fs.String("name", "", "table name")
	_ = fs.Parse(args)
	if *name == "" {
		fmt.Fprintln(os.Stderr, "--name is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := dial(ctx, *addr)
	defer client.Close()

	done, err := client.IsCreateTableDone(ctx, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "is-create-table-done error: %v\n", err)
		os.Exit(1)
	}
	if done {
		fmt.Println("done")
	} else {
		fmt.Println("creating")
	}
}

func tableSchema(args []string) {
	fs := flag.NewFlagSet("table schema", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:28010", "master gRPC address")
	name := fs.String("name", "", "table name")
	_ = fs.Parse(args)
	if *name == "" {
		fmt.Fprintln(os.Stderr, "--name is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := dial(ctx, *addr)
	defer client.Close()

	resp, err := client.GetTableSchema(ctx, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get table schema error: %v\n", err)
		os.Exit(1)
	}
	for i, col := range resp.Schema.Columns {
		key := ""
		if i < resp.Schema.KeyColumns {
			key = " (key)"
		}
		fmt.Printf("%s %s%s\n", col.Name, col.Type, key)
	}
}

func tabletLocate(args []string) {
	fs := flag.NewFlagSet("tablet locate", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:28010", "master gRPC address")
	id := fs.String("id", "", "tablet id")
	_ = fs.Parse(args)
	if *id == "" {
		fmt.Fprintln(os.Stderr, "--id is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := dial(ctx, *addr)
	defer client.Close()

	resp, err := client.GetTabletLocations(ctx, *id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get tablet locations error: %v\n", err)
		os.Exit(1)
	}
	if len(resp.Replicas) == 0 {
		fmt.Println("(no replicas reported)")
		return
	}
	for _, rep := range resp.Replicas {
		fmt.Printf("ts=%s role=%s\n", rep.TSUUID, rep.Role)
	}
}
