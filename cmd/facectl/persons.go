package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var personsCmd = &cobra.Command{
	Use:   "persons",
	Short: "List or delete known persons",
}

var personsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known persons with their signature counts",
	Args:  cobra.NoArgs,
	RunE:  runPersonsList,
}

var personsDeleteCmd = &cobra.Command{
	Use:   "delete <person-id>",
	Short: "Delete a person, its signatures and its stored images",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonsDelete,
}

func init() {
	rootCmd.AddCommand(personsCmd)
	personsCmd.AddCommand(personsListCmd, personsDeleteCmd)
}

func runPersonsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	persons, err := a.svc.ListPersons(ctx)
	if err != nil {
		return err
	}
	if len(persons) == 0 {
		fmt.Println("No persons registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIGNATURES\tUPDATED")
	for _, p := range persons {
		sigs, err := a.svc.ListSignatures(ctx, p.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.ID, p.Name, len(sigs), p.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runPersonsDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid person id %q: %w", args[0], err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.svc.DeletePerson(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted person %s\n", id)
	return nil
}
