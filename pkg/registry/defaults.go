package registry

import (
	"github.com/enroutehq/enroute/pkg/steps/aidecision"
	"github.com/enroutehq/enroute/pkg/steps/condition"
	"github.com/enroutehq/enroute/pkg/steps/crm"
	"github.com/enroutehq/enroute/pkg/steps/delay"
	"github.com/enroutehq/enroute/pkg/steps/email"
	exitstep "github.com/enroutehq/enroute/pkg/steps/exit"
	"github.com/enroutehq/enroute/pkg/steps/social"
	"github.com/enroutehq/enroute/pkg/steps/subjourney"
	"github.com/enroutehq/enroute/pkg/steps/webhook"
)

// RegisterDefaultHandlers registers every built-in step handler factory.
func (r *Registry) RegisterDefaultHandlers() {
	r.Register(email.NewFactory())
	r.Register(delay.NewFactory())
	r.Register(condition.NewFactory())
	r.Register(aidecision.NewFactory())

	r.Register(crm.NewUpdateContactFactory())
	r.Register(crm.NewCreateActivityFactory())
	r.Register(crm.NewMoveDealFactory())
	r.Register(crm.NewAddTagFactory())
	r.Register(crm.NewRemoveTagFactory())

	r.Register(webhook.NewFactory())
	r.Register(subjourney.NewFactory())

	r.Register(social.NewReplyFactory())
	r.Register(social.NewDMFactory())
	r.Register(social.NewPostFactory())

	r.Register(exitstep.NewFactory())
}
