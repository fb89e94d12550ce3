package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inkify/engine/internal/database"
	"github.com/inkify/engine/internal/models"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print row counts and engagement totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func() error {
			var users, posts, notifications int64
			if err := database.DB.Model(&models.User{}).Count(&users).Error; err != nil {
				return err
			}
			if err := database.DB.Model(&models.Post{}).Count(&posts).Error; err != nil {
				return err
			}
			if err := database.DB.Model(&models.Notification{}).Count(&notifications).Error; err != nil {
				return err
			}

			type totals struct {
				Likes    int64
				Comments int64
				Views    int64
			}
			var t totals
			err := database.DB.Model(&models.Post{}).
				Select("COALESCE(SUM(like_count),0) AS likes, COALESCE(SUM(comment_count),0) AS comments, COALESCE(SUM(views),0) AS views").
				Scan(&t).Error
			if err != nil {
				return err
			}

			fmt.Printf("users:         %d\n", users)
			fmt.Printf("posts:         %d\n", posts)
			fmt.Printf("notifications: %d\n", notifications)
			fmt.Printf("likes:         %d\n", t.Likes)
			fmt.Printf("comments:      %d\n", t.Comments)
			fmt.Printf("views:         %d\n", t.Views)
			return nil
		})
	},
}
