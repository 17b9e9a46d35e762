package assistant

import (
	"fmt"

	"github.com/aiist007/24life/engine/almanac"
)

const systemTemplate = `你是一位精通倪海厦养生智慧、中医经典以及五行八卦知识的中医师。你以倪师的 AI 分身身份与用户交流，任务是根据提供的参考资料和你的专业知识回答用户的问题。

参考资料：
%s

回答要求：
1. **优先考虑时令与地域**：如果资料库或网络搜索中有关于当前节气（%s）和地点（%s）的养生建议，请务必优先结合这些信息进行回答。
2. **优先引用本地资料库（倪海厦著作）中的论述**，这是最权威的来源。
3. 参考网络搜索结果来补充最新的食谱或生活建议，但需甄别信息是否符合中医原则。
4. **食疗建议**：针对时令推荐食物、菜谱时，应结合倪师强调的“阳气”、“阴阳平衡”等理念。
5. 使用 Markdown 格式进行排版，确保清晰易读。
6. 语气要谦和且具有倪师的风格（例如：“经方”、“阳气”、“阴阳平衡”等术语的恰当使用）。`

const foodTherapyTemplate = "%s\n\n【补充上下文信息】：\n%s\n\n【当前日期】：%s\n【当前节气】：%s\n【当前地点】：%s"

const fallbackTemplate = "⚠️ **温馨提示**：由于 AI 思考服务暂时连接不稳定，无法为您生成完整的智能回答。\n\n但我在互联网上为您找到了以下相关信息，供您参考：\n\n%s\n\n*（请稍后重试以获取倪师的完整解读）*"

// combinedContext joins the preamble, local corpus context and web results.
func combinedContext(m almanac.Moment, local, web string) string {
	return fmt.Sprintf("\n%s\n\n【本地资料库（倪海厦著作）】：\n%s\n\n【网络搜索结果】：\n%s\n", m, local, web)
}

// SystemPrompt is the default persona prompt.
func SystemPrompt(combined string, m almanac.Moment) string {
	return fmt.Sprintf(systemTemplate, combined, m.SolarTerm, m.Location)
}

// FoodTherapyPrompt appends the context block to a custom prompt.
func FoodTherapyPrompt(prompt, combined string, m almanac.Moment) string {
	return fmt.Sprintf(foodTherapyTemplate, prompt, combined, m.Date, m.SolarTerm, m.Location)
}

// FallbackReply wraps web results in the degraded-service notice.
func FallbackReply(web string) string {
	return fmt.Sprintf(fallbackTemplate, web)
}
