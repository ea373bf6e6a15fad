package domain

// RecommendationKind tags which payload of a Recommendation is set.
type RecommendationKind string

const (
	KindProduct            RecommendationKind = "product_recommendation"
	KindAlternatives       RecommendationKind = "alternatives"
	KindPriceComparison    RecommendationKind = "price_comparison"
	KindFeatureComparison  RecommendationKind = "feature_comparison"
	KindBudgetOptimization RecommendationKind = "budget_optimization"
	KindNutritionAnalysis  RecommendationKind = "nutrition_analysis"
	KindMealPlan           RecommendationKind = "meal_plan"
	KindAdvice             RecommendationKind = "advice"
)

// Recommendation is a typed record produced by the action executor or the
// recommendation stage. Exactly one payload matching Kind is non-nil; Advice
// kinds carry only Title and Reason.
type Recommendation struct {
	Kind   RecommendationKind `json:"type"`
	Title  string             `json:"title,omitempty"`
	Reason string             `json:"reason,omitempty"`

	Product      *Product            `json:"product,omitempty"`
	Alternatives *Alternatives       `json:"alternatives,omitempty"`
	Price        *PriceComparison    `json:"priceComparison,omitempty"`
	Features     *FeatureComparison  `json:"featureComparison,omitempty"`
	Budget       *BudgetOptimization `json:"budgetOptimization,omitempty"`
	Nutrition    *NutritionAnalysis  `json:"nutritionAnalysis,omitempty"`
	MealPlan     *MealPlan           `json:"mealPlan,omitempty"`
	Spending     map[string]float64  `json:"spending,omitempty"`
}

type Alternatives struct {
	Original string    `json:"original"`
	Products []Product `json:"products"`
}

type PriceComparison struct {
	Products []Product `json:"products"`
	Lowest   float64   `json:"lowest"`
	Highest  float64   `json:"highest"`
	Range    float64   `json:"range"`
}

type FeatureComparison struct {
	Products []Product `json:"products"`
	Features []string  `json:"features"`
}

// BudgetOptimization is the result of fitting a shopping list under a budget.
type BudgetOptimization struct {
	Items         []ListItem `json:"items"`
	OriginalTotal float64    `json:"originalTotal"`
	NewTotal      float64    `json:"newTotal"`
	Savings       float64    `json:"savings"`
	Budget        float64    `json:"budget"`
	WithinBudget  bool       `json:"withinBudget"`
}

// NutritionAnalysis buckets shopping list items into food groups.
type NutritionAnalysis struct {
	Categories   map[string][]string `json:"categories"`
	BalanceScore float64             `json:"balanceScore"`
	Suggestions  []string            `json:"suggestions"`
	Incompatible []string            `json:"incompatible,omitempty"`
}

type MealPlan struct {
	Days          int                  `json:"days"`
	Meals         map[string][]Product `json:"meals"`
	EstimatedCost float64              `json:"estimatedCost"`
	Budget        float64              `json:"budget"`
	WithinBudget  bool                 `json:"withinBudget"`
	Utilization   float64              `json:"utilization"`
}
