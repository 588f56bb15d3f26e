// cmd/tools/data-seeder/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"dca-platform/internal/common/config"
	"dca-platform/internal/common/database"
	"dca-platform/internal/ingestion"
	"dca-platform/internal/models"
	"dca-platform/internal/repository"
)

func main() {
	dcasCmd := flag.NewFlagSet("dcas", flag.ExitOnError)
	casesCmd := flag.NewFlagSet("cases", flag.ExitOnError)

	// dcas command flags
	dcaFile := dcasCmd.String("file", "", "JSON file with an array of agencies (optional)")
	dcaCount := dcasCmd.Int("count", 3, "Number of sample agencies when no file is given")

	// cases command flags
	caseFile := casesCmd.String("file", "", "JSON file with an array of intake documents (optional)")
	caseCount := casesCmd.Int("count", 10, "Number of sample intakes when no file is given")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()

	switch os.Args[1] {
	case "dcas":
		dcasCmd.Parse(os.Args[2:])
		if err := seedDCAs(ctx, cfg, *dcaFile, *dcaCount); err != nil {
			fmt.Printf("Error seeding agencies: %v\n", err)
			os.Exit(1)
		}

	case "cases":
		casesCmd.Parse(os.Args[2:])
		if err := seedCases(ctx, cfg, *caseFile, *caseCount); err != nil {
			fmt.Printf("Error queueing intakes: %v\n", err)
			os.Exit(1)
		}

	default:
		help()
		os.Exit(1)
	}
}

func help() {
	fmt.Println("Usage: data-seeder <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  dcas   Seed collection agencies into Postgres")
	fmt.Println("  cases  Push intake documents onto the Redis intake queue")
}

func seedDCAs(ctx context.Context, cfg *config.Config, file string, count int) error {
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	var agencies []*models.DCA
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &agencies); err != nil {
			return err
		}
	} else {
		agencies = sampleDCAs(count)
	}

	repo := repository.NewDCARepository(pg)
	for _, d := range agencies {
		if err := repo.Save(ctx, d); err != nil {
			return fmt.Errorf("saving %s: %w", d.ID, err)
		}
		fmt.Printf("Seeded agency: %s (%s)\n", d.Name, d.ID)
	}
	return nil
}

func seedCases(ctx context.Context, cfg *config.Config, file string, count int) error {
	rc, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		return err
	}
	defer rc.Close()

	var intakes []ingestion.Intake
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &intakes); err != nil {
			return err
		}
	} else {
		intakes = sampleIntakes(count)
	}

	for _, in := range intakes {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		if err := rc.Client.RPush(ctx, "case:intake", raw).Err(); err != nil {
			return err
		}
		fmt.Printf("Queued intake for customer: %s (%.2f %s)\n", in.CustomerRef, in.OriginalAmount, in.Currency)
	}
	return nil
}

func sampleDCAs(count int) []*models.DCA {
	specializations := [][]string{
		{"STANDARD", "SMALL_BUSINESS"},
		{"PREMIUM", "ENTERPRISE"},
		{"STANDARD", "PREMIUM", "ENTERPRISE"},
	}

	now := time.Now().UTC()
	out := make([]*models.DCA, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, &models.DCA{
			ID:                 uuid.NewString(),
			RegistrationNumber: fmt.Sprintf("REG-%04d", i+1),
			Name:               fmt.Sprintf("Sample Agency %d", i+1),
			Status:             models.DCAStatusActive,
			Contract:           models.Contract{Status: models.ContractActive},
			Specializations:    specializations[i%len(specializations)],
			Capacity:           models.Capacity{MaxConcurrentCases: 20 + 10*(i%3)},
			Performance: models.Performance{
				AverageRecoveryRate:  50 + float64(i%5)*8,
				SLACompliance:        80 + float64(i%4)*5,
				CustomerSatisfaction: 3.5 + float64(i%3)*0.5,
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return out
}

func sampleIntakes(count int) []ingestion.Intake {
	serviceTypes := []string{"STANDARD", "PREMIUM", "ENTERPRISE", "SMALL_BUSINESS"}
	riskProfiles := []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

	now := time.Now().UTC()
	out := make([]ingestion.Intake, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, ingestion.Intake{
			CustomerRef:    fmt.Sprintf("cust-%04d", i+1),
			OriginalAmount: 500 + float64(i)*1750,
			Currency:       "EUR",
			DueDate:        now.AddDate(0, 0, -(10 + i*13)),
			ServiceType:    serviceTypes[i%len(serviceTypes)],
			RiskProfile:    riskProfiles[i%len(riskProfiles)],
		})
	}
	return out
}
