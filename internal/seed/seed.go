// Package seed installs the default catalog and partner benefits on startup.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	benefitdomain "github.com/smallbiznis/launchpad/internal/benefit/domain"
	catalogdomain "github.com/smallbiznis/launchpad/internal/catalog/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type offeringSeed struct {
	code        string
	name        string
	category    string
	description string
	unitPrice   int64
	features    []string
}

var defaultOfferings = []offeringSeed{
	{
		code: "launch-basico", name: "Launch Básico", category: catalogdomain.CategoryLaunchPackage,
		description: "Constitución de la empresa, RUC y cuenta bancaria.",
		unitPrice:   49900,
		features:    []string{"company_incorporation", "tax_registration", "bank_account"},
	},
	{
		code: "launch-completo", name: "Launch Completo", category: catalogdomain.CategoryLaunchPackage,
		description: "Todo lo del plan básico más marca, sitio web y firma electrónica.",
		unitPrice:   99900,
		features: []string{
			"company_incorporation", "tax_registration", "bank_account",
			"brand_identity", "website", "digital_signature",
		},
	},
	{
		code: "constitucion-sas", name: "Constitución SAS", category: catalogdomain.CategoryCompanyFormation,
		unitPrice: 29900,
	},
	{
		code: "registro-marca", name: "Registro de marca", category: catalogdomain.CategoryLegal,
		unitPrice: 19900,
	},
	{
		code: "identidad-visual", name: "Identidad visual", category: catalogdomain.CategoryBranding,
		unitPrice: 24900,
	},
	{
		code: "firma-electronica", name: "Firma electrónica", category: catalogdomain.CategoryDigital,
		unitPrice: 2900,
	},
}

type benefitSeed struct {
	name        string
	partner     string
	description string
}

var defaultBenefits = []benefitSeed{
	{name: "Tres meses de contabilidad", partner: "Contadores Andinos", description: "Servicio contable sin costo durante el primer trimestre."},
	{name: "Dominio .ec gratis", partner: "NIC Ecuador", description: "Registro de dominio por un año."},
}

// EnsureDefaults inserts missing default offerings and benefits. Existing rows
// are never modified, so staff edits survive restarts.
func EnsureDefaults(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, seed := range defaultOfferings {
			if err := ensureOfferingTx(ctx, tx, node, seed, now); err != nil {
				return err
			}
		}
		for _, seed := range defaultBenefits {
			if err := ensureBenefitTx(ctx, tx, node, seed, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureOfferingTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, seed offeringSeed, now time.Time) error {
	var existing catalogdomain.Offering
	err := tx.WithContext(ctx).Where("code = ?", seed.code).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	features := seed.features
	if features == nil {
		features = []string{}
	}
	rawFeatures, err := json.Marshal(features)
	if err != nil {
		return err
	}
	offering := catalogdomain.Offering{
		ID:        node.Generate().Int64(),
		Code:      seed.code,
		Name:      seed.name,
		Category:  seed.category,
		UnitPrice: seed.unitPrice,
		Currency:  "USD",
		Features:  datatypes.JSON(rawFeatures),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if seed.description != "" {
		description := seed.description
		offering.Description = &description
	}
	return tx.WithContext(ctx).Create(&offering).Error
}

func ensureBenefitTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, seed benefitSeed, now time.Time) error {
	var existing benefitdomain.Benefit
	err := tx.WithContext(ctx).
		Where("partner = ? AND name = ?", seed.partner, seed.name).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	description := seed.description
	benefit := benefitdomain.Benefit{
		ID:          node.Generate().Int64(),
		Name:        seed.name,
		Partner:     seed.partner,
		Description: &description,
		IsActive:    true,
		CreatedAt:   now,
	}
	return tx.WithContext(ctx).Create(&benefit).Error
}
