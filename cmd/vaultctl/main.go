// vaultctl operates a notevault store from the command line: uploading,
// retrieving and managing objects, reporting quota usage and verifying
// payload integrity.
//
// Engine flags (-d, -o, -k, ...) are read by the config layer and may appear
// anywhere on the command line; see internal/server/config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mosaicedu/notevault/internal/buildinfo"
	"github.com/mosaicedu/notevault/internal/flagx"
	"github.com/mosaicedu/notevault/internal/server"
	"github.com/mosaicedu/notevault/internal/server/config"
	"github.com/mosaicedu/notevault/internal/server/services"
)

func main() {

	buildinfo.PrintBuildData(os.Stderr)

	pos, _ := splitArgs(os.Args[1:])
	if len(pos) == 0 {
		printUsage(os.Stderr)
		os.Exit(2)
	}
	cmd, rest := pos[0], pos[1:]

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigs
		cancelFunc()
	}()

	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if err := dispatch(ctx, app.Vault(), cmd, rest); err != nil {
		app.Logger().Error(ctx, err.Error())
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, vault *services.VaultService, cmd string, args []string) error {
	switch cmd {
	case "migrate":
		// Migrations already ran while the engine came up.
		fmt.Println("schema is up to date")
		return nil
	case "put":
		return cmdPut(ctx, vault, args)
	case "get":
		return cmdGet(ctx, vault, args)
	case "info":
		return cmdInfo(ctx, vault, args)
	case "ls":
		return cmdList(ctx, vault, args)
	case "rm":
		return cmdRemove(ctx, vault, args)
	case "rm-group":
		return cmdRemoveGroup(ctx, vault, args)
	case "rename":
		return cmdRename(ctx, vault, args)
	case "replace":
		return cmdReplace(ctx, vault, args)
	case "usage":
		return cmdUsage(ctx, vault, args)
	case "verify":
		return cmdVerify(ctx, vault)
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdPut(ctx context.Context, vault *services.VaultService, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: vaultctl put <owner> <file> [-visibility v] [-group g] [-name n]")
	}
	owner, path := args[0], args[1]

	opts := flag.NewFlagSet("put", flag.ContinueOnError)
	visibility := opts.String("visibility", "private", "public, private or unlisted")
	group := opts.String("group", "", "note group id")
	name := opts.String("name", "", "logical filename (defaults to the file's base name)")
	if err := opts.Parse(flagx.FilterArgs(os.Args[1:], []string{"-visibility", "-group", "-name"})); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	filename := *name
	if filename == "" {
		filename = filepath.Base(path)
	}

	obj, err := vault.Upload(ctx, services.UploadRequest{
		OwnerID:    owner,
		Filename:   filename,
		Visibility: *visibility,
		GroupID:    *group,
		Body:       f,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s  %d bytes  sha256=%s\n", obj.ID, obj.Name, obj.Size, obj.ChecksumSHA256)
	return nil
}

func cmdGet(ctx context.Context, vault *services.VaultService, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: vaultctl get <actor> <object-id> [-out file]")
	}
	actor, id := args[0], args[1]

	opts := flag.NewFlagSet("get", flag.ContinueOnError)
	out := opts.String("out", "", "write payload to file instead of stdout")
	if err := opts.Parse(flagx.FilterArgs(os.Args[1:], []string{"-out"})); err != nil {
		return err
	}

	dl, err := vault.Download(ctx, actor, id)
	if err != nil {
		return err
	}
	defer dl.Body.Close()

	if *out == "" {
		_, err = io.Copy(os.Stdout, dl.Body)
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, dl.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Printf("saved %s  %d bytes  sha256=%s\n", *out, n, dl.Object.ChecksumSHA256)
	return nil
}

func cmdInfo(ctx context.Context, vault *services.VaultService, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: vaultctl info <actor> <object-id>")
	}
	obj, err := vault.Get(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	size := "unknown"
	if obj.SizeKnown {
		size = strconv.FormatInt(obj.Size, 10)
	}
	fmt.Printf("id:           %s\n", obj.ID)
	fmt.Printf("owner:        %s\n", obj.OwnerID)
	fmt.Printf("name:         %s\n", obj.Name)
	fmt.Printf("size:         %s\n", size)
	fmt.Printf("sha256:       %s\n", obj.ChecksumSHA256)
	fmt.Printf("content-type: %s\n", obj.ContentType)
	fmt.Printf("visibility:   %s\n", obj.Visibility)
	fmt.Printf("group:        %s\n", obj.GroupID)
	fmt.Printf("compressed:   %v\n", obj.Compressed)
	fmt.Printf("encrypted:    %v\n", obj.Encrypted)
	fmt.Printf("legacy:       %v\n", obj.LegacyFormat)
	fmt.Printf("created:      %s\n", obj.CreatedAt.Format(time.RFC3339))
	return nil
}

func cmdList(ctx context.Context, vault *services.VaultService, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: vaultctl ls <owner>")
	}
	objs, err := vault.List(ctx, args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIZE\tVISIBILITY\tGROUP\tCREATED")
	for _, o := range objs {
		size := "-"
		if o.SizeKnown {
			size = strconv.FormatInt(o.Size, 10)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.Name, size, o.Visibility, o.GroupID, o.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func cmdRemove(ctx context.Context, vault *services.VaultService, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: vaultctl rm <actor> <object-id>")
	}
	if err := vault.Delete(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[1])
	return nil
}

func cmdRemoveGroup(ctx context.Context, vault *services.VaultService, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: vaultctl rm-group <owner> <group-id>")
	}
	n, err := vault.DeleteGroup(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d objects from group %s\n", n, args[1])
	return nil
}

func cmdRename(ctx context.Context, vault *services.VaultService, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: vaultctl rename <actor> <object-id> <new-name>")
	}
	obj, err := vault.Rename(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Printf("renamed %s to %s\n", obj.ID, obj.Name)
	return nil
}

func cmdReplace(ctx context.Context, vault *services.VaultService, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: vaultctl replace <actor> <object-id> <file> [-name n]")
	}
	actor, id, path := args[0], args[1], args[2]

	opts := flag.NewFlagSet("replace", flag.ContinueOnError)
	name := opts.String("name", "", "new logical filename (default: keep current)")
	if err := opts.Parse(flagx.FilterArgs(os.Args[1:], []string{"-name"})); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	obj, err := vault.Replace(ctx, actor, id, f, *name)
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s  %d bytes  sha256=%s\n", obj.ID, obj.Name, obj.Size, obj.ChecksumSHA256)
	return nil
}

func cmdUsage(ctx context.Context, vault *services.VaultService, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: vaultctl usage <owner>")
	}
	report, err := vault.Usage(ctx, args[0])
	if err != nil {
		return err
	}
	pct := float64(0)
	if report.Cap > 0 {
		pct = float64(report.Used) / float64(report.Cap) * 100
	}
	fmt.Printf("%d objects, %d of %d bytes used (%.1f%%)\n", report.Objects, report.Used, report.Cap, pct)
	return nil
}

func cmdVerify(ctx context.Context, vault *services.VaultService) error {
	report, err := vault.VerifyAll(ctx)
	if err != nil {
		return err
	}
	for _, p := range report.Problems {
		fmt.Printf("%s  owner=%s  %s  %v\n", p.ObjectID, p.OwnerID, p.Class, p.Err)
	}
	fmt.Printf("checked %d, ok %d, problems %d\n", report.Checked, report.OK, len(report.Problems))
	if !report.Clean() {
		return fmt.Errorf("%d objects failed verification", len(report.Problems))
	}
	return nil
}

// splitArgs separates positional arguments from flag arguments so that
// engine and command flags may appear anywhere relative to positionals.
// Every recognized flag takes a value.
func splitArgs(args []string) (pos []string, flags []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") {
			flags = append(flags, a)
			if !strings.Contains(a, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}
		pos = append(pos, a)
	}
	return pos, flags
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `usage: vaultctl <command> [arguments] [flags]

commands:
  put <owner> <file>                 upload a file
  get <actor> <object-id>            download a payload
  info <actor> <object-id>           show object metadata
  ls <owner>                         list an owner's objects
  rm <actor> <object-id>             delete an object
  rm-group <owner> <group-id>        delete every object in a group
  rename <actor> <object-id> <name>  change an object's filename
  replace <actor> <object-id> <file> store a new payload for an object
  usage <owner>                      report quota consumption
  verify                             re-read and verify every stored object
  migrate                            apply schema migrations and exit

engine flags (may appear anywhere): -d DSN, -o upload dir, -m max upload,
-q owner quota, -x extensions, -z zstd level, -k encryption key, -l log level`)
}
