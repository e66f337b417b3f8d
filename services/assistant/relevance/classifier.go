// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package relevance decides whether a user turn needs live web evidence
// before the model answers.
//
// The policy is a versioned keyword table, not a model call: deterministic,
// zero-latency, and auditable. Matching is case-insensitive substring
// matching over the first text part of the turn, in English and Chinese.
// A keyword hit means the answer likely depends on facts that change in the
// outside world (recalls, pricing, part numbers, software levels) and the
// model must not answer from parametric memory alone.
package relevance

import "strings"

// TableVersion identifies the keyword table revision. Bump when keywords
// change so stored classification decisions remain interpretable.
const TableVersion = 1

// =============================================================================
// Keyword Table v1
// =============================================================================

// keywords is the v1 trigger table, grouped by why the category forces a
// lookup. English and Chinese entries are matched the same way.
var keywords = []string{
	// Time-sensitive or reality-changing topics. "202" catches model years.
	"latest",
	"new",
	"update",
	"202",
	"model",
	"最新",
	"新版",
	"更新",
	"新款",
	"改款",
	"年款",

	// Legal, recall, compliance.
	"recall",
	"safety recall",
	"tsb",
	"technical service bulletin",
	"service bulletin",
	"nhtsa",
	"transport canada",
	"class action",
	"lawsuit",
	"settlement",
	"warranty extension",
	"召回",
	"安全召回",
	"技术通告",
	"服务通告",
	"通告",
	"延保",
	"保修延长",
	"集体诉讼",
	"诉讼",
	"和解",

	// Known issues and failure patterns.
	"fail",
	"failure",
	"known issue",
	"common problem",
	"common issue",
	"通病",
	"常见问题",
	"常见故障",
	"容易坏",
	"经常坏",
	"失效",
	"故障率",

	// Pricing, money, labor.
	"price",
	"cost",
	"labor",
	"labour",
	"labor time",
	"flat rate",
	"book time",
	"estimate",
	"quote",
	"价格",
	"多少钱",
	"费用",
	"成本",
	"工时",
	"工费",
	"报价",
	"估价",

	// OEM parts and part numbers.
	"oem",
	"part number",
	"part no",
	"pn",
	"genuine part",
	"replacement part",
	"原厂",
	"原厂件",
	"副厂",
	"配件号",
	"零件号",
	"料号",
	"替换件",
	"原装",

	// Torque specs, capacities, fluids.
	"torque",
	"torque spec",
	"specification",
	"spec",
	"fluid capacity",
	"oil capacity",
	"coolant capacity",
	"atf capacity",
	"service capacity",
	"扭矩",
	"扭力",
	"规格",
	"参数",
	"加多少",
	"容量",
	"机油容量",
	"冷却液容量",
	"变速箱油容量",

	// Official procedures.
	"procedure",
	"service procedure",
	"repair procedure",
	"step by step",
	"how to replace",
	"how to remove",
	"how to install",
	"oem procedure",
	"维修步骤",
	"更换步骤",
	"拆卸方法",
	"安装方法",
	"维修流程",
	"官方流程",

	// Software and calibration levels.
	"software update",
	"firmware update",
	"reprogram",
	"flash",
	"calibration",
	"pcm update",
	"ecm update",
	"软件更新",
	"系统更新",
	"刷机",
	"重刷",
	"标定",
	"重新标定",
	"程序升级",

	// Manufacturer campaigns and programs.
	"campaign",
	"service campaign",
	"field action",
	"customer satisfaction program",
	"extended warranty",
	"服务活动",
	"厂家活动",
	"召回活动",
	"客户满意计划",

	// System-level electrical and network faults.
	"multiple codes",
	"multiple dtc",
	"no communication",
	"lost communication",
	"can bus",
	"lin bus",
	"network fault",
	"module offline",
	"no power",
	"low voltage",
	"charging issue",
	"battery drain",
	"parasitic draw",
	"pcm",
	"ecm",
	"tcm",
	"bcm",
	"abs module",
	"airbag module",
	"多个报码",
	"多个故障码",
	"无法通讯",
	"通信丢失",
	"总线故障",
	"模块离线",
	"没电",
	"电压低",
	"充电问题",
	"电瓶亏电",
	"漏电",
	"寄生电流",
	"发动机电脑",
	"变速箱电脑",
	"车身电脑",
	"abs模块",
	"气囊模块",

	// Regulations.
	"emissions",
	"epa",
	"carb",
	"safety standard",
	"regulation",
	"compliance",
	"排放",
	"环保",
	"排放标准",
	"法规",
	"合规",
	"安全标准",
}

// =============================================================================
// Classifier
// =============================================================================

// NeedsEvidence reports whether the question requires a live web lookup.
//
// Pure function: same input, same answer, no I/O. Empty input returns false.
// Substring matching is deliberate; "recalls" and "召回了" must still hit.
func NeedsEvidence(text string) bool {
	if text == "" {
		return false
	}
	t := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}
