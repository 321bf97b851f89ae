package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/guregu/null/v6"
	"github.com/krobus00/realtime-gateway/internal/config"
	"github.com/krobus00/realtime-gateway/internal/infrastructure"
	"github.com/krobus00/realtime-gateway/internal/util"
	"github.com/krobus00/realtime-gateway/migration"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartMigrate(cmd *cobra.Command, args []string) {
	databaseName, _ := cmd.Flags().GetString("databaseName")
	actionType, _ := cmd.Flags().GetString("action")
	migrationName, _ := cmd.Flags().GetString("name")
	version, _ := cmd.Flags().GetInt64("version")

	dbConfig, ok := config.Env.Database[databaseName]
	if !ok {
		util.ContinueOrFatal(fmt.Errorf("database %q is not configured", databaseName))
	}

	migrationDir := path.Join(migration.PostgresDir, databaseName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infrastructure.NewPostgresConnection(ctx, dbConfig)
	util.ContinueOrFatal(err)
	defer db.Close()

	err = goose.SetDialect("postgres")
	util.ContinueOrFatal(err)

	// new migration files go to disk, everything else reads the embedded set
	if actionType == "create" {
		goose.SetBaseFS(nil)
		err = goose.Create(db.DB, path.Join("migration", migrationDir), migrationName, "sql")
		util.ContinueOrFatal(err)
		return
	}
	goose.SetBaseFS(migration.FS)

	switch actionType {
	case "up":
		err = goose.Up(db.DB, migrationDir, goose.WithAllowMissing())
	case "up-by-one":
		err = goose.UpByOne(db.DB, migrationDir, goose.WithAllowMissing())
	case "up-to":
		err = goose.UpTo(db.DB, migrationDir, null.IntFrom(version).Int64, goose.WithAllowMissing())
	case "down":
		err = goose.Down(db.DB, migrationDir, goose.WithAllowMissing())
	case "down-to":
		err = goose.DownTo(db.DB, migrationDir, null.IntFrom(version).Int64, goose.WithAllowMissing())
	case "status":
		err = goose.Status(db.DB, migrationDir)
	case "reset":
		err = goose.Reset(db.DB, migrationDir, goose.WithAllowMissing())
		if err != nil {
			break
		}
		err = goose.Up(db.DB, migrationDir, goose.WithAllowMissing())
	default:
		err = errors.New("invalid command")
	}

	util.ContinueOrFatal(err)
	logrus.WithFields(logrus.Fields{
		"database": databaseName,
		"action":   actionType,
	}).Info("migration finished")
}
