package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/storewise-ai/server/internal/shopify"
)

// Tool names bound to the summary model.
const (
	ToolSearchProducts   = "search_products"
	ToolGetOrderDetails  = "get_order_details"
	ToolGetCustomer      = "get_customer"
	defaultSearchResults = 5
	maxSearchResults     = 20
)

// AdminClient is the slice of the shopify client the tools need.
type AdminClient interface {
	Query(ctx context.Context, creds shopify.Credentials, query string, variables map[string]any) (json.RawMessage, *shopify.CostInfo, error)
}

// Toolset builds the follow-up tools the summary model may call. Each tool
// resolves shop credentials from the request context, so one toolset serves
// every shop.
type Toolset struct {
	client AdminClient
}

func NewToolset(client AdminClient) *Toolset {
	return &Toolset{client: client}
}

// All returns the business tools for graph binding.
func (ts *Toolset) All() []tool.BaseTool {
	return []tool.BaseTool{
		ts.searchProductsTool(),
		ts.getOrderDetailsTool(),
		ts.getCustomerTool(),
	}
}

// GetToolInfos collects the ToolInfo for each tool, as the graph needs them
// for model binding.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (ts *Toolset) run(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	creds, ok := shopify.CredentialsFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("no shop credentials in context")
	}
	data, _, err := ts.client.Query(ctx, creds, query, variables)
	return data, err
}

// ===================================
// search_products
// ===================================

type SearchProductsInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type toolOutput struct {
	Result json.RawMessage `json:"result"`
}

const searchProductsQuery = `query ToolSearchProducts($first: Int!, $query: String) {
  products(first: $first, query: $query) {
    edges {
      node {
        id
        title
        status
        totalInventory
        priceRangeV2 {
          minVariantPrice {
            amount
            currencyCode
          }
        }
      }
    }
  }
}`

func (ts *Toolset) searchProductsTool() tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSearchProducts,
			Desc: "Search the shop's products by keyword. Returns id, title, status, inventory and starting price for each match. Use when the answer needs product details not present in the payload.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Product search keywords: title words, vendor, product type or SKU.",
					Required: true,
				},
				"max_results": {
					Type: "number",
					Desc: "Maximum number of products to return (default: 5, max: 20)",
				},
			}),
		},
		func(ctx context.Context, in *SearchProductsInput) (*toolOutput, error) {
			if strings.TrimSpace(in.Query) == "" {
				return nil, fmt.Errorf("query is required")
			}
			first := in.MaxResults
			if first <= 0 {
				first = defaultSearchResults
			}
			if first > maxSearchResults {
				first = maxSearchResults
			}
			data, err := ts.run(ctx, searchProductsQuery, map[string]any{
				"first": first,
				"query": in.Query,
			})
			if err != nil {
				return nil, err
			}
			return &toolOutput{Result: data}, nil
		},
	)
}

// ===================================
// get_order_details
// ===================================

type GetOrderDetailsInput struct {
	OrderName string `json:"order_name"`
}

const orderDetailsQuery = `query ToolOrderDetails($query: String) {
  orders(first: 1, query: $query) {
    edges {
      node {
        id
        name
        createdAt
        displayFulfillmentStatus
        displayFinancialStatus
        totalPriceSet {
          shopMoney {
            amount
            currencyCode
          }
        }
        customer {
          displayName
          email
        }
        lineItems(first: 10) {
          edges {
            node {
              title
              quantity
              originalUnitPriceSet {
                shopMoney {
                  amount
                  currencyCode
                }
              }
            }
          }
        }
      }
    }
  }
}`

func (ts *Toolset) getOrderDetailsTool() tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetOrderDetails,
			Desc: "Fetch one order with its line items by order name (e.g. #1001). Use when the merchant asks about a specific order.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_name": {
					Type:     "string",
					Desc:     "The order name as shown in the admin, with or without the leading #.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *GetOrderDetailsInput) (*toolOutput, error) {
			name := strings.TrimSpace(strings.TrimPrefix(in.OrderName, "#"))
			if name == "" {
				return nil, fmt.Errorf("order_name is required")
			}
			data, err := ts.run(ctx, orderDetailsQuery, map[string]any{
				"query": "name:" + name,
			})
			if err != nil {
				return nil, err
			}
			return &toolOutput{Result: data}, nil
		},
	)
}

// ===================================
// get_customer
// ===================================

type GetCustomerInput struct {
	Search string `json:"search"`
}

const customerQuery = `query ToolGetCustomer($query: String) {
  customers(first: 1, query: $query) {
    edges {
      node {
        id
        displayName
        email
        numberOfOrders
        amountSpent {
          amount
          currencyCode
        }
        createdAt
      }
    }
  }
}`

func (ts *Toolset) getCustomerTool() tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetCustomer,
			Desc: "Look up one customer by name or email. Returns lifetime order count and amount spent. Use when the merchant asks about a specific customer.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"search": {
					Type:     "string",
					Desc:     "Customer name or email address.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *GetCustomerInput) (*toolOutput, error) {
			search := strings.TrimSpace(in.Search)
			if search == "" {
				return nil, fmt.Errorf("search is required")
			}
			data, err := ts.run(ctx, customerQuery, map[string]any{
				"query": search,
			})
			if err != nil {
				return nil, err
			}
			return &toolOutput{Result: data}, nil
		},
	)
}
