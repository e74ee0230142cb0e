// Command cib creates, appends to, extracts, deletes from, queries and
// inspects CIB archives — a single memory-mapped, block-partitioned
// container file. Grounded on original_source/src/MYZFuncs/cibfuncs.c's
// argument dispatch and the teacher pack's pflag-based CLIs.
package main

import (
	"fmt"
	"os"

	"github.com/ChrisKom04/CIBArchiever/internal/archive"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "cib:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("cib", pflag.ContinueOnError)

	create := flags.StringP("create", "c", "", "create a new archive")
	appendTo := flags.StringP("append", "a", "", "append/update paths in an existing archive")
	extract := flags.StringP("extract", "x", "", "extract paths (or everything) from an archive")
	del := flags.StringP("delete", "d", "", "delete paths from an archive")
	query := flags.StringP("query", "q", "", "query whether paths exist in an archive")
	meta := flags.StringP("metadata", "m", "", "print per-entry metadata")
	structure := flags.StringP("structure", "p", "", "print directory structure")
	compress := flags.BoolP("compress", "j", false, "compress file payloads (valid with -c/-a only)")

	if err := flags.Parse(args); err != nil {
		return err
	}
	paths := flags.Args()

	selected := 0
	for _, v := range []string{*create, *appendTo, *extract, *del, *query, *meta, *structure} {
		if v != "" {
			selected++
		}
	}
	if selected != 1 {
		return fmt.Errorf("exactly one of -c/-a/-x/-d/-q/-m/-p is required")
	}
	if *compress && *create == "" && *appendTo == "" {
		return fmt.Errorf("-j is only valid with -c or -a")
	}

	switch {
	case *create != "":
		if len(paths) == 0 {
			return fmt.Errorf("-c requires at least one path")
		}
		return archive.CreateArchive(*create, paths, *compress)
	case *appendTo != "":
		if len(paths) == 0 {
			return fmt.Errorf("-a requires at least one path")
		}
		return archive.AppendArchive(*appendTo, paths, *compress)
	case *extract != "":
		return archive.ExtractArchive(*extract, paths)
	case *del != "":
		if len(paths) == 0 {
			return fmt.Errorf("-d requires at least one path")
		}
		return archive.DeleteArchive(*del, paths)
	case *query != "":
		if len(paths) == 0 {
			return fmt.Errorf("-q requires at least one path")
		}
		return archive.QueryArchive(os.Stdout, *query, paths)
	case *meta != "":
		return archive.PrintMetadataArchive(os.Stdout, *meta)
	case *structure != "":
		return archive.PrintStructureArchive(os.Stdout, *structure)
	}
	return nil
}
