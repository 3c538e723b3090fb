package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/bcrypt"

	"entadmin.io/internal/ids"
	"entadmin.io/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("ENTADMIN_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or ENTADMIN_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|bootstrap]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "bootstrap":
		err = bootstrapAdmin(ctx, db)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// bootstrapAdmin creates the initial superuser account from
// ENTADMIN_BOOTSTRAP_EMAIL and ENTADMIN_BOOTSTRAP_PASSWORD. The seeded
// 'Super Admin' role and 'System' enterprise must already exist (run seed
// first). Idempotent: an existing account with that email is left alone.
func bootstrapAdmin(ctx context.Context, db *sql.DB) error {
	email := os.Getenv("ENTADMIN_BOOTSTRAP_EMAIL")
	password := os.Getenv("ENTADMIN_BOOTSTRAP_PASSWORD")
	if email == "" || password == "" {
		return fmt.Errorf("ENTADMIN_BOOTSTRAP_EMAIL and ENTADMIN_BOOTSTRAP_PASSWORD are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		insert into users (id, enterprise_id, role_id, username, email, password_hash, status, is_system)
		values ($1, 'ent-system', 'role-super-admin', 'admin', $2, $3, 'active', true)
		on conflict (email) do nothing
	`, ids.New(), email, string(hash))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Printf("bootstrap: account %s already exists", email)
	} else {
		log.Printf("bootstrap: created superuser %s", email)
	}
	return nil
}
