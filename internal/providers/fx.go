package providers

import (
	"github.com/smallbiznis/launchpad/internal/providers/email"
	"github.com/smallbiznis/launchpad/internal/providers/pdf"
	"github.com/smallbiznis/launchpad/internal/providers/whatsapp"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	whatsapp.Module,
	pdf.Module,
)
