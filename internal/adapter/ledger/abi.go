package ledger

// presaleABI covers the presale contract methods the orchestrator calls.
const presaleABI = `[
	{"type":"function","name":"buyTokens","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"buyWithUSDT","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"weiRaised","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// erc20ABI is the allowance subset of ERC-20.
const erc20ABI = `[
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const raisedMethod = "weiRaised"
