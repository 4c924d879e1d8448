package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/geoaware/backend/internal/config"
	"github.com/geoaware/backend/internal/database"
	"github.com/geoaware/backend/internal/models"
)

func main() {
	config.LoadDotEnv()

	username := flag.String("username", "", "Username of the account to promote to admin")
	revoke := flag.Bool("revoke", false, "Revoke admin privileges instead of granting")
	flag.Parse()

	if *username == "" {
		fmt.Println("Usage: promote-admin -username=alice")
		fmt.Println("       promote-admin -username=alice -revoke")
		return
	}

	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	db := database.DB

	var user models.User
	if err := db.Where("username = ?", *username).First(&user).Error; err != nil {
		fmt.Printf("User not found: %s\n", *username)
		return
	}

	target := models.RoleAdmin
	if *revoke {
		target = models.RoleUser
	}
	if user.Role == target {
		fmt.Printf("User %s already has role %s\n", user.Username, target)
		return
	}

	if err := db.Model(&user).Update("role", target).Error; err != nil {
		fmt.Printf("Failed to update role: %v\n", err)
		return
	}

	fmt.Printf("Role of %s set to %s\n", user.Username, target)
	fmt.Printf("  User ID: %s\n", user.ID)
	fmt.Println("  The user must log in again for the change to take effect")
}
