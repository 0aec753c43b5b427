package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/identity"
)

var personsCmd = &cobra.Command{
	Use:   "persons",
	Short: "Manage enrolled persons",
}

var personsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all enrolled persons",
	Args:  cobra.NoArgs,
	RunE:  runPersonsList,
}

var personsDeleteCmd = &cobra.Command{
	Use:   "delete <person-name>",
	Short: "Delete a person and all their enrolled faces",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonsDelete,
}

func init() {
	rootCmd.AddCommand(personsCmd)
	personsCmd.AddCommand(personsListCmd)
	personsCmd.AddCommand(personsDeleteCmd)

	personsDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
}

func runPersonsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	persons, err := a.engine.Store().ListPersons(ctx)
	if err != nil {
		return fmt.Errorf("listing persons: %w", err)
	}

	if len(persons) == 0 {
		fmt.Println("No persons enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tFACES\tCREATED")
	fmt.Fprintln(w, "--\t----\t-----\t-------")

	for _, person := range persons {
		faces, err := a.engine.Store().FacesByPerson(ctx, person.ID)
		if err != nil {
			return fmt.Errorf("listing faces for %s: %w", person.ID, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", person.ID, person.Name, len(faces), person.CreatedAt.Format("2006-01-02"))
	}

	w.Flush()

	fmt.Printf("\nTotal: %d persons\n", len(persons))
	return nil
}

func runPersonsDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	person, err := a.engine.Store().FindPersonByName(ctx, args[0])
	if err != nil {
		if errors.Is(err, identity.ErrPersonNotFound) {
			return fmt.Errorf("person %q does not exist", args[0])
		}
		return err
	}

	faces, err := a.engine.Store().FacesByPerson(ctx, person.ID)
	if err != nil {
		return fmt.Errorf("listing faces: %w", err)
	}

	if !mustGetBool(cmd, "yes") {
		fmt.Printf("Delete %s (%s) and %d enrolled faces? [y/N]: ", person.Name, person.ID, len(faces))
		var answer string
		_, _ = fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if len(faces) > 0 {
		ids := make([]string, len(faces))
		for i, face := range faces {
			ids[i] = face.ID
		}
		if err := a.engine.RemoveFromIndex(ctx, ids...); err != nil {
			return fmt.Errorf("removing faces from index: %w", err)
		}
	}

	if err := a.engine.Store().DeletePerson(ctx, person.ID); err != nil {
		return fmt.Errorf("deleting person: %w", err)
	}

	fmt.Printf("Deleted %s and %d faces\n", person.Name, len(faces))
	a.saveIndex(ctx)
	return nil
}
