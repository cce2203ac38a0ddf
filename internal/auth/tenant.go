package auth

import (
	"context"

	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"go.uber.org/zap"
)

// selectTenant picks the requested tenant in the prompt and confirms it.
// Built-in tenants have their own radio button; anything else is a custom
// tenant typed into the combo box filter.
func (h *handshake) selectTenant(ctx context.Context) (string, error) {
	tenant := h.req.Tenant
	if tenant == "" {
		tenant = tenantPrivate
	}
	h.info("Selecting tenant " + tenant)

	// Credentials were accepted once the prompt is up, so an unusable tenant
	// control is a tenant failure rather than a credentials one.
	invalid := func(op string, err error) error {
		return schemas.NewError(schemas.ErrCodeInvalidTenant, "invalid tenant: "+op, err)
	}

	if tenant == tenantGlobal || tenant == tenantPrivate {
		if err := h.primary.Click(ctx, tenantLabel(tenant)); err != nil {
			return "", invalid("select "+tenant, err)
		}
	} else {
		if err := h.primary.Click(ctx, TenantCustomLabel); err != nil {
			return "", invalid("select custom tenant", err)
		}
		if err := h.primary.Click(ctx, TenantComboToggle); err != nil {
			return "", invalid("open tenant list", err)
		}
		if err := h.primary.Type(ctx, TenantComboSearch, tenant); err != nil {
			return "", invalid("filter tenant list", err)
		}
	}

	if err := h.primary.WaitFor(ctx, TenantConfirm, h.opts.FormTimeout); err != nil {
		return "", schemas.Automation("wait for tenant confirmation", err)
	}
	if err := h.primary.Click(ctx, TenantConfirm); err != nil {
		return "", schemas.Automation("confirm tenant", err)
	}

	// The dialog closes once the tenant switch went through. If it does not,
	// verification decides.
	closed, err := poll(ctx, h.logger, h.opts.PollInterval, h.opts.SubmitTimeout, not(h.selectorPresent(h.primary, TenantConfirm)))
	if err != nil {
		return "", schemas.Automation("wait for tenant switch", err)
	}
	if !closed {
		h.logger.Debug("Tenant dialog still open after confirmation.", zap.String("tenant", tenant))
	}
	return tenant, nil
}
