package billing

// Plan features
const (
	FeatureTableManagement     = "table_management"
	FeatureQRCodeBasic         = "qrcode_basic"
	FeatureQRCodeAdvanced      = "qrcode_advanced"
	FeatureBasicReports        = "basic_reports"
	FeatureFullReports         = "full_reports"
	FeatureInventory           = "inventory_management"
	FeatureStaffManagement     = "staff_management"
	FeatureLoyaltyProgram      = "loyalty_program"
	FeatureMultiBranch         = "multi_branch"
	FeatureAPIAccess           = "api_access"
	FeatureCustomIntegrations  = "custom_integrations"
	FeatureAdvancedAnalytics   = "advanced_analytics"
	FeatureSupplierManagement  = "supplier_management"
	FeatureMarketingTools      = "marketing_tools"
)

// Limited resources
const (
	ResourceMaxTables        = "max_tables"
	ResourceMaxUsers         = "max_users"
	ResourceMaxMenuItems     = "max_menu_items"
	ResourceMaxMonthlyOrders = "max_monthly_orders"
)

// Unlimited marks a resource with no cap.
const Unlimited = -1

// DefaultPlanCode is the plan applied when a tenant has no live
// subscription. Deliberate product decision: it enables trial-less
// evaluation rather than locking the tenant out.
const DefaultPlanCode = "basic"

// Plan defines a pricing tier: a feature set plus resource limits.
type Plan struct {
	Code     string         `json:"code"`
	Name     string         `json:"name"`
	Level    int            `json:"level"` // hierarchy rank for upgrade/downgrade
	Features []string       `json:"features"`
	Limits   map[string]int `json:"limits"`
}

// HasFeature reports membership in the plan's feature set.
func (p *Plan) HasFeature(name string) bool {
	for _, f := range p.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Limit returns the plan's cap for a resource and whether one is defined.
func (p *Plan) Limit(resource string) (int, bool) {
	v, ok := p.Limits[resource]
	return v, ok
}

// Plans is the hardcoded plan catalogue.
var Plans = map[string]*Plan{
	"basic": {
		Code:  "basic",
		Name:  "Basic",
		Level: 1,
		Features: []string{
			FeatureTableManagement,
			FeatureQRCodeBasic,
			FeatureBasicReports,
		},
		Limits: map[string]int{
			ResourceMaxTables:        10,
			ResourceMaxUsers:         3,
			ResourceMaxMenuItems:     50,
			ResourceMaxMonthlyOrders: 500,
		},
	},
	"professional": {
		Code:  "professional",
		Name:  "Professional",
		Level: 2,
		Features: []string{
			FeatureTableManagement,
			FeatureQRCodeBasic,
			FeatureQRCodeAdvanced,
			FeatureBasicReports,
			FeatureFullReports,
			FeatureInventory,
			FeatureStaffManagement,
			FeatureLoyaltyProgram,
		},
		Limits: map[string]int{
			ResourceMaxTables:        30,
			ResourceMaxUsers:         10,
			ResourceMaxMenuItems:     200,
			ResourceMaxMonthlyOrders: 2000,
		},
	},
	"premium": {
		Code:  "premium",
		Name:  "Premium",
		Level: 3,
		Features: []string{
			FeatureTableManagement,
			FeatureQRCodeBasic,
			FeatureQRCodeAdvanced,
			FeatureBasicReports,
			FeatureFullReports,
			FeatureInventory,
			FeatureStaffManagement,
			FeatureLoyaltyProgram,
			FeatureMultiBranch,
			FeatureAPIAccess,
			FeatureCustomIntegrations,
			FeatureAdvancedAnalytics,
			FeatureSupplierManagement,
			FeatureMarketingTools,
		},
		Limits: map[string]int{
			ResourceMaxTables:        Unlimited,
			ResourceMaxUsers:         Unlimited,
			ResourceMaxMenuItems:     Unlimited,
			ResourceMaxMonthlyOrders: Unlimited,
		},
	},
}

// PlanByCode returns the plan for a code, or ErrPlanNotFound.
func PlanByCode(code string) (*Plan, error) {
	p, ok := Plans[code]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return p, nil
}

// ValidPlan returns true if the plan code is recognised.
func ValidPlan(code string) bool {
	_, ok := Plans[code]
	return ok
}
