package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inkify/engine/internal/database"
	"github.com/inkify/engine/internal/models"
)

// backfillNamesCmd rewrites the denormalized author_name snapshot on every
// post from the current usernames. Useful after bulk imports or renames
// that bypassed the API.
var backfillNamesCmd = &cobra.Command{
	Use:   "backfill-names",
	Short: "Rewrite post author name snapshots from the users table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func() error {
			var users []models.User
			if err := database.DB.Find(&users).Error; err != nil {
				return err
			}

			updated := int64(0)
			for _, u := range users {
				name := u.DisplayName()
				res := database.DB.Model(&models.Post{}).
					Where("author_id = ? AND author_name <> ?", u.ID, name).
					Update("author_name", name)
				if res.Error != nil {
					return res.Error
				}
				updated += res.RowsAffected
			}

			fmt.Printf("backfilled author names on %d posts across %d users\n", updated, len(users))
			return nil
		})
	},
}
