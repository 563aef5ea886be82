package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/ufaulu/core"
	"github.com/trezcool/ufaulu/core/attainment"
	"github.com/trezcool/ufaulu/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sqlx.DB
	conf    *core.Config
	usrRepo user.Repository
	attSvc  *attainment.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate up|down|status|version              - run database migrations")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-admin] - add or update a user; the password is prompted next")
	fmt.Println("  seed                                        - load a demo program with courses, outcomes and marks")
	fmt.Println("  recompute -course COURSE_ID [-year YYYY-YYYY] - recompute and persist a course's CO attainment")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant all roles.")

	recomputeCmd := flag.NewFlagSet("recompute", flag.ExitOnError)
	recomputeCourse := recomputeCmd.String("course", "", "The course ID.")
	recomputeYear := recomputeCmd.String("year", "", "The academic year, e.g. 2024-2025.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserUname, *addUserEmail, string(pwd), *addUserAdmin)
	case "seed":
		return cli.seed()
	case "recompute":
		if err := recomputeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recomputeCourse == "" {
			recomputeCmd.Usage()
			return errHelp
		}
		return cli.recompute(*recomputeCourse, *recomputeYear)
	default:
		cli.printUsage()
		return errHelp
	}
}
